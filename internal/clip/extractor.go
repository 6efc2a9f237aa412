package clip

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vigilcam/vigil-agent/internal/config"
	"github.com/vigilcam/vigil-agent/internal/frame"
)

// Extractor slices the frame buffer around a trigger instant, optionally
// resamples for slow motion, and hands the result to the encoder.
type Extractor struct {
	preRoll  float64
	postRoll float64
	slow     float64
	fps      int
	dir      string
	encoder  Encoder
	logger   *slog.Logger
}

// NewExtractor creates an extractor from the validated configuration.
// Clips are written under cfg.ClipDir().
func NewExtractor(cfg *config.Config, encoder Encoder, logger *slog.Logger) *Extractor {
	return &Extractor{
		preRoll:  cfg.PreRollSecs(),
		postRoll: cfg.PostRollSecs(),
		slow:     cfg.SlowMotion,
		fps:      cfg.FPS,
		dir:      cfg.ClipDir(),
		encoder:  encoder,
		logger:   logger,
	}
}

// Window returns the buffer span [trigger - pre-roll, trigger + post-roll]
// extracted for a trigger.
func (e *Extractor) Window(triggerTime float64) (from, to float64) {
	return triggerTime - e.preRoll, triggerTime + e.postRoll
}

// Extract slices the standard alert window around triggerTime out of buf
// and encodes it. The slice is an immutable snapshot: the buffer lock is
// held only while copying frame headers, never during encoding. An encoder
// error is non-fatal to the pipeline; no File is produced.
func (e *Extractor) Extract(ctx context.Context, buf *frame.Buffer, triggerTime float64) (*File, error) {
	from, to := e.Window(triggerTime)
	return e.extract(ctx, buf, triggerTime, from, to)
}

// ExtractLast encodes the most recent duration seconds of the buffer,
// ending at now. It serves on-demand clip commands that bypass the alert
// state machine with a synthetic trigger.
func (e *Extractor) ExtractLast(ctx context.Context, buf *frame.Buffer, now, duration float64) (*File, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("extract: duration must be positive, got %g", duration)
	}
	return e.extract(ctx, buf, now, now-duration, now)
}

func (e *Extractor) extract(ctx context.Context, buf *frame.Buffer, triggerTime, from, to float64) (*File, error) {
	frames := buf.Slice(from, to)
	if len(frames) == 0 {
		return nil, fmt.Errorf("extract: no frames buffered in [%g, %g]", from, to)
	}

	frames = Resample(frames, e.slow, e.fps)
	duration := nominalDuration(frames)

	path := filepath.Join(e.dir, Filename(triggerTime, duration))
	if err := e.encoder.Encode(ctx, frames, path, e.fps); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	e.logger.Info("extracted clip",
		"path", path,
		"trigger_time", triggerTime,
		"frames", len(frames),
		"duration_secs", duration,
	)

	return &File{
		ID:          uuid.NewString(),
		Path:        path,
		TriggerTime: triggerTime,
		Duration:    duration,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Resample remaps frames for slow-motion playback. A factor s < 1 stretches
// the nominal playback span to actual span / s, duplicating the nearest
// earlier source frame to fill the introduced gaps; timestamps are remapped
// onto the output cadence. Factors >= 1 return the input unchanged.
func Resample(frames []frame.Frame, s float64, fps int) []frame.Frame {
	if s >= 1 || len(frames) < 2 {
		return frames
	}

	t0 := frames[0].Timestamp
	span := frames[len(frames)-1].Timestamp - t0
	outSpan := span / s
	step := 1.0 / float64(fps)
	n := int(math.Round(outSpan*float64(fps))) + 1

	out := make([]frame.Frame, 0, n)
	src := 0
	for k := 0; k < n; k++ {
		// Source instant this output slot shows, in original stream time.
		srcTime := t0 + float64(k)*step*s
		for src+1 < len(frames) && frames[src+1].Timestamp <= srcTime {
			src++
		}
		f := frames[src]
		f.Timestamp = t0 + float64(k)*step
		out = append(out, f)
	}
	return out
}

// nominalDuration is the playback span of the (already resampled) frame
// timestamps.
func nominalDuration(frames []frame.Frame) float64 {
	if len(frames) == 0 {
		return 0
	}
	return frames[len(frames)-1].Timestamp - frames[0].Timestamp
}
