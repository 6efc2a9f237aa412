// Package clip turns a span of buffered frames into an encoded video file.
package clip

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// File describes one extracted clip. Created here, owned by the retention
// layer until eviction deletes it.
type File struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	TriggerTime float64   `json:"trigger_time"`
	Duration    float64   `json:"duration_secs"`
	Sequence    int64     `json:"sequence"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filename builds the deterministic clip filename for a trigger timestamp
// and playback duration. Both are encoded in milliseconds and zero-padded
// so lexical order equals chronological order; retention rebuilds its
// registry after a restart from these names alone.
func Filename(triggerTime, duration float64) string {
	return fmt.Sprintf("clip_%013d_%08d.mp4",
		int64(triggerTime*1000), int64(duration*1000))
}

// ParseFilename recovers the trigger timestamp and duration from a clip
// filename. The second return is false for names this package did not
// produce.
func ParseFilename(name string) (triggerTime, duration float64, ok bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, "clip_") || !strings.HasSuffix(base, ".mp4") {
		return 0, 0, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(base, "clip_"), ".mp4")
	parts := strings.Split(core, "_")
	if len(parts) != 2 {
		return 0, 0, false
	}
	tms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	dms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return float64(tms) / 1000, float64(dms) / 1000, true
}
