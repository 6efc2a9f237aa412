// Package notify delivers alert artifacts to the configured notification
// channel. Delivery is best-effort with bounded retries; the pipeline never
// blocks on it and never re-extracts a clip because a send failed.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vigilcam/vigil-agent/internal/clip"
)

// Notifier sends alert artifacts out of process.
type Notifier interface {
	SendPhoto(ctx context.Context, path, caption string) error
	SendClip(ctx context.Context, c *clip.File) error
}

// SendError is a failed delivery attempt. Server errors (5xx) are
// retryable; client errors (4xx) are permanent.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("notify send failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors. Network errors are retried
// separately by the caller.
func (e *SendError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Stub is a no-op notifier that records what it was asked to send.
type Stub struct {
	logger *slog.Logger

	Photos []string
	Clips  []string
	Fail   bool
}

// NewStub creates a stub notifier.
func NewStub(logger *slog.Logger) *Stub {
	return &Stub{logger: logger}
}

func (s *Stub) SendPhoto(ctx context.Context, path, caption string) error {
	if s.Fail {
		return fmt.Errorf("notify: stub failure requested")
	}
	s.Photos = append(s.Photos, path)
	if s.logger != nil {
		s.logger.Info("notifier stub: photo send requested", "path", path)
	}
	return nil
}

func (s *Stub) SendClip(ctx context.Context, c *clip.File) error {
	if s.Fail {
		return fmt.Errorf("notify: stub failure requested")
	}
	s.Clips = append(s.Clips, c.Path)
	if s.logger != nil {
		s.logger.Info("notifier stub: clip send requested", "path", c.Path)
	}
	return nil
}
