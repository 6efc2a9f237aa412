package api

import (
	"path/filepath"
	"time"

	"github.com/vigilcam/vigil-agent/internal/clip"
	"github.com/vigilcam/vigil-agent/internal/engine"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	AgentID string `json:"agent_id"`
}

type StatusResponse struct {
	Pipeline    engine.Status `json:"pipeline"`
	ClipsStored int           `json:"clips_stored"`
	ClipsLimit  int           `json:"clips_limit"`
}

type ClipResponse struct {
	ID          string  `json:"id"`
	Filename    string  `json:"filename"`
	TriggerTime float64 `json:"trigger_time"`
	Duration    float64 `json:"duration_secs"`
	Sequence    int64   `json:"sequence"`
	CreatedAt   string  `json:"created_at"`
}

type ClipsResponse struct {
	Clips []ClipResponse `json:"clips"`
}

type ClipCommandRequest struct {
	DurationSecs float64 `json:"duration_secs,omitempty"`
}

type CommandResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ClipToResponse(c clip.File) ClipResponse {
	return ClipResponse{
		ID:          c.ID,
		Filename:    filepath.Base(c.Path),
		TriggerTime: c.TriggerTime,
		Duration:    c.Duration,
		Sequence:    c.Sequence,
		CreatedAt:   c.CreatedAt.Format(time.RFC3339),
	}
}
