// Package source acquires frames from a live stream. Reconnection and
// backoff are the source's own concern; the pipeline only distinguishes
// "frame", "no frame this tick", and "stream ended".
package source

import (
	"context"
	"errors"

	"github.com/vigilcam/vigil-agent/internal/frame"
)

// ErrEndOfStream is returned when the stream has terminated and no further
// frames will arrive.
var ErrEndOfStream = errors.New("source: end of stream")

// ErrNoFrame marks a transient gap: no frame was available this tick. The
// pipeline holds state and tries again; it never treats this as fatal.
var ErrNoFrame = errors.New("source: no frame available")

// Source produces frames in capture order.
type Source interface {
	// NextFrame blocks until a frame is available, the stream ends
	// (ErrEndOfStream), a transient gap occurs (ErrNoFrame), or ctx is
	// done.
	NextFrame(ctx context.Context) (frame.Frame, error)
	Close() error
}
