// Package config provides configuration management for the Vigil Agent.
// Configuration is loaded from environment variables with sensible defaults
// into an immutable Config value that is validated before the pipeline
// starts and passed by reference into each component's constructor.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// Default values
	DefaultPort              = 8791
	DefaultLogLevel          = "info"
	DefaultDataDir           = ".vigil"
	DefaultFPS               = 5
	DefaultFrameWidth        = 640
	DefaultFrameHeight       = 480
	DefaultSensitivity       = 4000
	DefaultMinMotionFrames   = 2
	DefaultDetectionSeconds  = 2.0
	DefaultSecsBetweenAlerts = 9.0
	DefaultVideoLengthSecs   = 8.0
	DefaultSlowMotion        = 1.0
	DefaultMaxVideoFiles     = 20

	// ContextSecs is the fixed slice of calm included before the motion
	// onset in every extracted clip.
	ContextSecs = 1.0

	// Environment variable names
	EnvPort              = "VIGIL_PORT"
	EnvLogLevel          = "VIGIL_LOG_LEVEL"
	EnvDataDir           = "VIGIL_DATA_DIR"
	EnvStreamURL         = "VIGIL_STREAM_URL"
	EnvFPS               = "VIGIL_FPS"
	EnvFrameWidth        = "VIGIL_FRAME_WIDTH"
	EnvFrameHeight       = "VIGIL_FRAME_HEIGHT"
	EnvSensitivity       = "VIGIL_SENSITIVITY"
	EnvMinMotionFrames   = "VIGIL_MIN_MOTION_FRAMES"
	EnvDetectionSeconds  = "VIGIL_DETECTION_SECONDS"
	EnvSecsBetweenAlerts = "VIGIL_SECS_BETWEEN_ALERTS"
	EnvVideoLengthSecs   = "VIGIL_VIDEO_LENGTH_SECS"
	EnvSlowMotion        = "VIGIL_SLOW_MOTION"
	EnvMask              = "VIGIL_MASK"
	EnvMaxVideoFiles     = "VIGIL_MAX_VIDEO_FILES"
	EnvTelegramToken     = "VIGIL_TELEGRAM_TOKEN"
	EnvTelegramChatID    = "VIGIL_TELEGRAM_CHAT_ID"

	// Database filename
	DBFilename = "vigil.db"
)

// Mask is the rectangular sub-region of the frame within which motion is
// evaluated. Coordinates satisfy X1 < X2 and Y1 < Y2.
type Mask struct {
	X1, Y1, X2, Y2 int
}

// Width returns the mask width in pixels.
func (m Mask) Width() int { return m.X2 - m.X1 }

// Height returns the mask height in pixels.
func (m Mask) Height() int { return m.Y2 - m.Y1 }

// Config holds the validated agent configuration. It is constructed once at
// startup and never mutated afterwards.
type Config struct {
	Port     int
	LogLevel string
	DataDir  string

	StreamURL   string
	FPS         int
	FrameWidth  int
	FrameHeight int

	Sensitivity       int
	MinMotionFrames   int
	DetectionSeconds  float64
	SecsBetweenAlerts float64
	VideoLengthSecs   float64
	SlowMotion        float64
	Mask              Mask
	MaxVideoFiles     int

	TelegramToken  string
	TelegramChatID string
}

// New creates a Config with defaults and environment variable overrides.
// The result is validated; an error here is fatal and occurs before any
// frame is processed.
func New() (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort,
		LogLevel:          DefaultLogLevel,
		DataDir:           defaultDataDir(),
		FPS:               DefaultFPS,
		FrameWidth:        DefaultFrameWidth,
		FrameHeight:       DefaultFrameHeight,
		Sensitivity:       DefaultSensitivity,
		MinMotionFrames:   DefaultMinMotionFrames,
		DetectionSeconds:  DefaultDetectionSeconds,
		SecsBetweenAlerts: DefaultSecsBetweenAlerts,
		VideoLengthSecs:   DefaultVideoLengthSecs,
		SlowMotion:        DefaultSlowMotion,
		MaxVideoFiles:     DefaultMaxVideoFiles,
	}
	cfg.Mask = Mask{X1: 0, Y1: 0, X2: cfg.FrameWidth, Y2: cfg.FrameHeight}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Port, err = intEnv(EnvPort, c.Port); err != nil {
		return err
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.LogLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.DataDir = dd
	}
	c.StreamURL = os.Getenv(EnvStreamURL)
	if c.FPS, err = intEnv(EnvFPS, c.FPS); err != nil {
		return err
	}
	if c.FrameWidth, err = intEnv(EnvFrameWidth, c.FrameWidth); err != nil {
		return err
	}
	if c.FrameHeight, err = intEnv(EnvFrameHeight, c.FrameHeight); err != nil {
		return err
	}
	if c.Sensitivity, err = intEnv(EnvSensitivity, c.Sensitivity); err != nil {
		return err
	}
	if c.MinMotionFrames, err = intEnv(EnvMinMotionFrames, c.MinMotionFrames); err != nil {
		return err
	}
	if c.DetectionSeconds, err = floatEnv(EnvDetectionSeconds, c.DetectionSeconds); err != nil {
		return err
	}
	if c.SecsBetweenAlerts, err = floatEnv(EnvSecsBetweenAlerts, c.SecsBetweenAlerts); err != nil {
		return err
	}
	if c.VideoLengthSecs, err = floatEnv(EnvVideoLengthSecs, c.VideoLengthSecs); err != nil {
		return err
	}
	if c.SlowMotion, err = floatEnv(EnvSlowMotion, c.SlowMotion); err != nil {
		return err
	}
	if c.MaxVideoFiles, err = intEnv(EnvMaxVideoFiles, c.MaxVideoFiles); err != nil {
		return err
	}
	if m := os.Getenv(EnvMask); m != "" {
		mask, err := ParseMask(m)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMask, err)
		}
		c.Mask = mask
	} else {
		// Default mask covers the whole frame at the configured resolution.
		c.Mask = Mask{X1: 0, Y1: 0, X2: c.FrameWidth, Y2: c.FrameHeight}
	}
	c.TelegramToken = os.Getenv(EnvTelegramToken)
	c.TelegramChatID = os.Getenv(EnvTelegramChatID)
	return nil
}

// ParseMask parses "x1,y1,x2,y2" into a Mask.
func ParseMask(s string) (Mask, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Mask{}, fmt.Errorf("mask must have four coordinates x1,y1,x2,y2, got %q", s)
	}
	coords := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Mask{}, fmt.Errorf("mask coordinate %q is not an integer", p)
		}
		coords[i] = v
	}
	return Mask{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}, nil
}

// Validate checks the configuration invariants. It is called by New and must
// pass before the core starts.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("frame dimensions must be positive, got %dx%d", c.FrameWidth, c.FrameHeight)
	}
	if c.Sensitivity <= 0 {
		return fmt.Errorf("sensitivity must be positive, got %d", c.Sensitivity)
	}
	if c.MinMotionFrames <= 0 {
		return fmt.Errorf("min motion frames must be positive, got %d", c.MinMotionFrames)
	}
	if c.DetectionSeconds <= 0 {
		return fmt.Errorf("detection seconds must be positive, got %g", c.DetectionSeconds)
	}
	if c.VideoLengthSecs <= 0 {
		return fmt.Errorf("video length must be positive, got %g", c.VideoLengthSecs)
	}
	if c.SlowMotion <= 0 {
		return fmt.Errorf("slow motion factor must be positive, got %g", c.SlowMotion)
	}
	if c.MaxVideoFiles <= 0 {
		return fmt.Errorf("max video files must be positive, got %d", c.MaxVideoFiles)
	}
	if c.Mask.X1 < 0 || c.Mask.Y1 < 0 || c.Mask.X1 >= c.Mask.X2 || c.Mask.Y1 >= c.Mask.Y2 {
		return fmt.Errorf("mask coordinates must satisfy 0 <= x1 < x2 and 0 <= y1 < y2, got %+v", c.Mask)
	}
	if c.Mask.X2 > c.FrameWidth || c.Mask.Y2 > c.FrameHeight {
		return fmt.Errorf("mask %+v exceeds frame bounds %dx%d", c.Mask, c.FrameWidth, c.FrameHeight)
	}
	if c.VideoLengthSecs <= c.DetectionSeconds+ContextSecs {
		return fmt.Errorf("video length (%g) must exceed detection seconds + context (%g)",
			c.VideoLengthSecs, c.DetectionSeconds+ContextSecs)
	}
	// Successive alerts must never request buffer ranges that overlap the
	// post-roll still being written for the previous clip.
	if c.SecsBetweenAlerts < c.PostRollSecs() {
		return fmt.Errorf("secs between alerts (%g) must be at least the post-roll (%g)",
			c.SecsBetweenAlerts, c.PostRollSecs())
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("%s and %s must be set together", EnvTelegramToken, EnvTelegramChatID)
	}
	return nil
}

// PreRollSecs returns the clip duration before the trigger instant.
func (c *Config) PreRollSecs() float64 {
	return c.DetectionSeconds + ContextSecs
}

// PostRollSecs returns the clip duration after the trigger instant.
func (c *Config) PostRollSecs() float64 {
	return c.VideoLengthSecs - c.PreRollSecs()
}

// BufferCapacity returns the frame buffer capacity in frames:
// ceil(fps * (video length + secs between alerts + pre-roll)).
func (c *Config) BufferCapacity() int {
	secs := c.VideoLengthSecs + c.SecsBetweenAlerts + c.PreRollSecs()
	return int(math.Ceil(float64(c.FPS) * secs))
}

// DBPath returns the full path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFilename)
}

// ClipDir returns the directory where extracted clips are stored.
func (c *Config) ClipDir() string {
	return filepath.Join(c.DataDir, "clips")
}

// TelegramEnabled reports whether the Telegram notifier is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

func intEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func floatEnv(name string, def float64) (float64, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
