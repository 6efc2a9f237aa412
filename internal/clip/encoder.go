package clip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/vigilcam/vigil-agent/internal/frame"
)

// Encoder writes a frame sequence to a video container. The pipeline treats
// encoding as an opaque primitive; an encoder error fails the extraction
// without producing a file to register.
type Encoder interface {
	Encode(ctx context.Context, frames []frame.Frame, path string, fps int) error
}

// FFmpegEncoder pipes gray8 rawvideo into an external ffmpeg process.
type FFmpegEncoder struct {
	binary string
	logger *slog.Logger
}

// NewFFmpegEncoder creates an encoder using the ffmpeg binary on PATH.
func NewFFmpegEncoder(logger *slog.Logger) *FFmpegEncoder {
	return &FFmpegEncoder{binary: "ffmpeg", logger: logger}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, frames []frame.Frame, path string, fps int) error {
	if len(frames) == 0 {
		return fmt.Errorf("encode: no frames")
	}
	w, h := frames[0].Width, frames[0].Height

	cmd := exec.CommandContext(ctx, e.binary,
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "gray",
		"-video_size", fmt.Sprintf("%dx%d", w, h),
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		path,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("encode: stdin pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("encode: start ffmpeg: %w", err)
	}

	writeErr := func() error {
		defer stdin.Close()
		for i := range frames {
			if frames[i].Width != w || frames[i].Height != h {
				return fmt.Errorf("encode: frame %d size %dx%d differs from %dx%d",
					i, frames[i].Width, frames[i].Height, w, h)
			}
			if _, err := stdin.Write(frames[i].Pixels); err != nil {
				return fmt.Errorf("encode: write frame %d: %w", i, err)
			}
		}
		return nil
	}()

	if err := cmd.Wait(); err != nil {
		os.Remove(path)
		return fmt.Errorf("encode: ffmpeg exited: %w: %s", err, tail(stderr.String(), 512))
	}
	if writeErr != nil {
		os.Remove(path)
		return writeErr
	}

	e.logger.Debug("encoded clip", "path", path, "frames", len(frames), "fps", fps)
	return nil
}

func tail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}

// StubEncoder is an in-process encoder for tests and dev runs. It records
// what it was asked to encode and writes a placeholder file so the
// retention layer has something real to manage.
type StubEncoder struct {
	logger *slog.Logger

	Calls      int
	LastFrames []frame.Frame
	Fail       bool
}

// NewStubEncoder creates a stub encoder.
func NewStubEncoder(logger *slog.Logger) *StubEncoder {
	return &StubEncoder{logger: logger}
}

func (e *StubEncoder) Encode(ctx context.Context, frames []frame.Frame, path string, fps int) error {
	e.Calls++
	e.LastFrames = frames
	if e.Fail {
		return fmt.Errorf("encode: stub failure requested")
	}
	if e.logger != nil {
		e.logger.Info("encoder stub: encode requested", "path", path, "frames", len(frames))
	}
	return os.WriteFile(path, []byte("stub clip"), 0644)
}
