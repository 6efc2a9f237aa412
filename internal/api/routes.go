package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vigilcam/vigil-agent/internal/clip"
	"github.com/vigilcam/vigil-agent/internal/config"
	"github.com/vigilcam/vigil-agent/internal/engine"
)

// Pipeline is the slice of the engine the API needs.
type Pipeline interface {
	Status() engine.Status
	Enqueue(cmd engine.Command) error
}

// ClipStore is the slice of the retention manager the API needs.
type ClipStore interface {
	List() []clip.File
	Get(id string) (clip.File, bool)
	Count() int
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/clips", listClipsHandler(cfg))
		r.Get("/clips/{id}/download", downloadClipHandler(cfg))
		r.Post("/commands/snapshot", snapshotCommandHandler(cfg))
		r.Post("/commands/clip", clipCommandHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
			AgentID: cfg.AgentID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, StatusResponse{
			Pipeline:    cfg.Pipeline.Status(),
			ClipsStored: cfg.Clips.Count(),
			ClipsLimit:  cfg.MaxVideoFiles,
		})
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips := cfg.Clips.List()
		resp := ClipsResponse{Clips: make([]ClipResponse, len(clips))}
		for i, c := range clips {
			resp.Clips[i] = ClipToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func downloadClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "clip id required", "BAD_REQUEST")
			return
		}

		c, ok := cfg.Clips.Get(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		http.ServeFile(w, r, c.Path)
	}
}

func snapshotCommandHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Pipeline.Enqueue(engine.Command{Type: engine.CommandSnapshot}); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "command queue full", "QUEUE_FULL")
			return
		}
		WriteJSON(w, http.StatusAccepted, CommandResponse{Status: "queued"})
	}
}

func clipCommandHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClipCommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.DurationSecs < 0 {
			WriteError(w, http.StatusBadRequest, "duration_secs must be positive", "BAD_REQUEST")
			return
		}

		cmd := engine.Command{Type: engine.CommandClip, DurationSecs: req.DurationSecs}
		if err := cfg.Pipeline.Enqueue(cmd); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "command queue full", "QUEUE_FULL")
			return
		}
		WriteJSON(w, http.StatusAccepted, CommandResponse{Status: "queued"})
	}
}
