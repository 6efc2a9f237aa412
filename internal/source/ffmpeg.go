package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/vigilcam/vigil-agent/internal/config"
	"github.com/vigilcam/vigil-agent/internal/frame"
)

// FFmpegSource reads gray8 rawvideo from an external ffmpeg process
// decoding the configured stream URL. ffmpeg owns the network leg,
// including RTSP reconnect behavior; this side only consumes the pipe.
type FFmpegSource struct {
	binary string
	url    string
	width  int
	height int
	fps    int
	logger *slog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *strings.Builder
}

// NewFFmpegSource creates a source for cfg.StreamURL. Open must be called
// before NextFrame.
func NewFFmpegSource(cfg *config.Config, logger *slog.Logger) *FFmpegSource {
	return &FFmpegSource{
		binary: "ffmpeg",
		url:    cfg.StreamURL,
		width:  cfg.FrameWidth,
		height: cfg.FrameHeight,
		fps:    cfg.FPS,
		logger: logger,
	}
}

// Open starts the decoder process.
func (s *FFmpegSource) Open(ctx context.Context) error {
	args := []string{
		"-nostdin",
		"-loglevel", "error",
	}
	if strings.HasPrefix(s.url, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", s.url,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-s", fmt.Sprintf("%dx%d", s.width, s.height),
		"-r", fmt.Sprintf("%d", s.fps),
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, s.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("source: stdout pipe: %w", err)
	}
	s.stderr = &strings.Builder{}
	cmd.Stderr = s.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("source: start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.logger.Info("frame source opened", "url", s.url,
		"size", fmt.Sprintf("%dx%d", s.width, s.height), "fps", s.fps)
	return nil
}

// NextFrame reads one frame from the decoder pipe and stamps it with the
// wall-clock capture time in seconds.
func (s *FFmpegSource) NextFrame(ctx context.Context) (frame.Frame, error) {
	if s.stdout == nil {
		return frame.Frame{}, fmt.Errorf("source: not opened")
	}
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}

	pixels := make([]byte, s.width*s.height)
	if _, err := io.ReadFull(s.stdout, pixels); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			tail := s.stderr.String()
			if len(tail) > 256 {
				tail = tail[len(tail)-256:]
			}
			s.logger.Warn("frame source stream ended", "stderr", tail)
			return frame.Frame{}, ErrEndOfStream
		}
		return frame.Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}

	return frame.Frame{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Width:     s.width,
		Height:    s.height,
		Pixels:    pixels,
	}, nil
}

// Close terminates the decoder process.
func (s *FFmpegSource) Close() error {
	if s.cmd == nil {
		return nil
	}
	if s.stdout != nil {
		s.stdout.Close()
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	s.cmd = nil
	// A killed decoder is the expected shutdown path.
	if err != nil && strings.Contains(err.Error(), "killed") {
		return nil
	}
	return err
}
