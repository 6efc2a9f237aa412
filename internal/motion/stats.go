package motion

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Stats keeps a rolling window of recent motion scores. The summary feeds
// the status endpoint so sensitivity can be tuned against the observed
// score baseline instead of guesswork.
type Stats struct {
	mu     sync.Mutex
	window []float64
	next   int
	filled bool
}

// Summary is a point-in-time description of recent scores.
type Summary struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	P95     float64 `json:"p95"`
	Max     float64 `json:"max"`
}

// NewStats creates a stats tracker over the last size scores.
func NewStats(size int) *Stats {
	if size <= 0 {
		size = 256
	}
	return &Stats{window: make([]float64, size)}
}

// Record adds one score to the window.
func (s *Stats) Record(score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window[s.next] = float64(score)
	s.next++
	if s.next == len(s.window) {
		s.next = 0
		s.filled = true
	}
}

// Summarize computes the current window summary.
func (s *Stats) Summarize() Summary {
	s.mu.Lock()
	n := s.next
	if s.filled {
		n = len(s.window)
	}
	samples := make([]float64, n)
	copy(samples, s.window[:n])
	s.mu.Unlock()

	if n == 0 {
		return Summary{}
	}

	sort.Float64s(samples)
	sd := 0.0
	if n > 1 {
		sd = stat.StdDev(samples, nil)
	}
	return Summary{
		Samples: n,
		Mean:    stat.Mean(samples, nil),
		StdDev:  sd,
		P95:     stat.Quantile(0.95, stat.Empirical, samples, nil),
		Max:     samples[n-1],
	}
}
