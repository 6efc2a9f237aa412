// Package motion scores frames for foreground activity inside a masked
// region and smooths the resulting signal before it reaches the alerting
// layer.
package motion

import (
	"github.com/vigilcam/vigil-agent/internal/config"
	"github.com/vigilcam/vigil-agent/internal/frame"
)

// Model estimates how many pixels inside the mask are foreground for a
// given frame. Implementations own whatever background state they need, so
// alternative detectors can be substituted without touching the alerting
// layer.
type Model interface {
	Score(f *frame.Frame, mask config.Mask) int
}

const (
	// learnRate is the exponential weight applied to each new observation
	// when updating the per-pixel background estimate.
	learnRate = 0.05
	// devGain scales the tracked per-pixel deviation into the foreground
	// threshold.
	devGain = 2.5
	// minDelta is the floor on the per-pixel threshold, so sensor noise on
	// a flat background does not count as foreground.
	minDelta = 15.0
	// initialDev seeds the deviation estimate before the model has seen
	// enough frames to track it.
	initialDev = 8.0
)

// Background is an adaptive per-pixel background model. Each pixel keeps an
// exponentially weighted mean and mean absolute deviation; a pixel is
// foreground when it deviates from the mean by more than devGain times the
// tracked deviation. The first frame initializes the model, so it scores 0.
type Background struct {
	width  int
	height int
	mean   []float32
	dev    []float32
	primed bool
}

// NewBackground creates a background model for frames of the given size.
func NewBackground(width, height int) *Background {
	return &Background{
		width:  width,
		height: height,
		mean:   make([]float32, width*height),
		dev:    make([]float32, width*height),
	}
}

// Score counts foreground pixels inside mask and folds f into the
// background estimate. Frames that do not match the model dimensions are
// ignored and score 0.
func (b *Background) Score(f *frame.Frame, mask config.Mask) int {
	if f.Width != b.width || f.Height != b.height {
		return 0
	}
	if !b.primed {
		b.prime(f)
		return 0
	}

	count := 0
	for y := mask.Y1; y < mask.Y2; y++ {
		row := y * b.width
		for x := mask.X1; x < mask.X2; x++ {
			i := row + x
			p := float32(f.Pixels[i])
			diff := p - b.mean[i]
			if diff < 0 {
				diff = -diff
			}

			threshold := b.dev[i] * devGain
			if threshold < minDelta {
				threshold = minDelta
			}
			if diff > threshold {
				count++
			}

			b.mean[i] += learnRate * (p - b.mean[i])
			b.dev[i] += learnRate * (diff - b.dev[i])
		}
	}
	return count
}

// Reset discards the learned background. The next frame re-primes the model.
func (b *Background) Reset() {
	b.primed = false
}

func (b *Background) prime(f *frame.Frame) {
	for i, p := range f.Pixels {
		b.mean[i] = float32(p)
		b.dev[i] = initialDev
	}
	b.primed = true
}
