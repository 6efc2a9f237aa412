package motion

import (
	"github.com/vigilcam/vigil-agent/internal/config"
	"github.com/vigilcam/vigil-agent/internal/frame"
)

// Event is the per-frame motion verdict. It is derived, not persisted: the
// debouncer holds the only history the pipeline needs.
type Event struct {
	Timestamp     float64 `json:"timestamp"`
	Score         int     `json:"score"`
	MotionPresent bool    `json:"motion_present"`
}

// Scorer evaluates frames against the configured mask and sensitivity.
// Sensitivity is inverse: a lower value means fewer foreground pixels are
// needed to report motion.
type Scorer struct {
	model       Model
	mask        config.Mask
	sensitivity int
}

// NewScorer creates a scorer using the given model. The mask and
// sensitivity come from the validated configuration.
func NewScorer(model Model, cfg *config.Config) *Scorer {
	return &Scorer{
		model:       model,
		mask:        cfg.Mask,
		sensitivity: cfg.Sensitivity,
	}
}

// Score produces the motion event for f.
func (s *Scorer) Score(f *frame.Frame) Event {
	count := s.model.Score(f, s.mask)
	return Event{
		Timestamp:     f.Timestamp,
		Score:         count,
		MotionPresent: count > s.sensitivity,
	}
}

// Debouncer suppresses single-frame noise: motion is confirmed only after
// minFrames consecutive positive observations. An isolated positive frame
// among negatives is never escalated.
type Debouncer struct {
	minFrames int
	run       int
}

// NewDebouncer creates a debouncer requiring minFrames consecutive
// positives.
func NewDebouncer(minFrames int) *Debouncer {
	return &Debouncer{minFrames: minFrames}
}

// Observe folds one per-frame verdict in and reports whether motion is
// currently confirmed.
func (d *Debouncer) Observe(present bool) bool {
	if !present {
		d.run = 0
		return false
	}
	d.run++
	return d.run >= d.minFrames
}

// Reset clears the consecutive-frame run.
func (d *Debouncer) Reset() {
	d.run = 0
}
