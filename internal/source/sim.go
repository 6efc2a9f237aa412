package source

import (
	"context"
	"time"

	"github.com/vigilcam/vigil-agent/internal/frame"
)

// Sim is a deterministic synthetic source for tests and -dev runs. It
// produces flat gray frames at the configured cadence and paints a bright
// square during scripted motion intervals.
type Sim struct {
	width    int
	height   int
	fps      int
	interval time.Duration // zero disables pacing (tests)

	baseline byte
	motion   []Interval
	next     int
	limit    int // total frames to emit, zero for unlimited
}

// Interval is a half-open stream-time window [From, To) with motion.
type Interval struct {
	From, To float64
}

// NewSim creates a simulated source. Stream time starts at zero and
// advances 1/fps per frame.
func NewSim(width, height, fps int) *Sim {
	return &Sim{
		width:    width,
		height:   height,
		fps:      fps,
		baseline: 100,
	}
}

// WithMotion schedules motion intervals.
func (s *Sim) WithMotion(intervals ...Interval) *Sim {
	s.motion = append(s.motion, intervals...)
	return s
}

// WithLimit ends the stream after n frames.
func (s *Sim) WithLimit(n int) *Sim {
	s.limit = n
	return s
}

// WithPacing makes NextFrame sleep one frame interval per call, for live
// dev runs.
func (s *Sim) WithPacing() *Sim {
	s.interval = time.Second / time.Duration(s.fps)
	return s
}

func (s *Sim) NextFrame(ctx context.Context) (frame.Frame, error) {
	if s.limit > 0 && s.next >= s.limit {
		return frame.Frame{}, ErrEndOfStream
	}
	if s.interval > 0 {
		select {
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()
		case <-time.After(s.interval):
		}
	} else if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}

	ts := float64(s.next) / float64(s.fps)
	s.next++

	pixels := make([]byte, s.width*s.height)
	for i := range pixels {
		pixels[i] = s.baseline
	}
	if s.inMotion(ts) {
		// A bright square in the upper-left quadrant.
		for y := 0; y < s.height/2; y++ {
			for x := 0; x < s.width/2; x++ {
				pixels[y*s.width+x] = 250
			}
		}
	}

	return frame.Frame{
		Timestamp: ts,
		Width:     s.width,
		Height:    s.height,
		Pixels:    pixels,
	}, nil
}

func (s *Sim) inMotion(ts float64) bool {
	for _, iv := range s.motion {
		if ts >= iv.From && ts < iv.To {
			return true
		}
	}
	return false
}

func (s *Sim) Close() error { return nil }
