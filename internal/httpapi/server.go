// Package httpapi exposes the supervisor over HTTP for local UIs and the
// CLI client. Stream keys never leave this layer unmasked.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"restreamd/internal/logging"
	"restreamd/internal/models"
	"restreamd/internal/store"
	"restreamd/internal/supervisor"
)

// Handler handles stream management API requests.
type Handler struct {
	sup *supervisor.Supervisor
	log *logging.Logger
}

// NewHandler creates a new API handler over the supervisor.
func NewHandler(sup *supervisor.Supervisor, log *logging.Logger) *Handler {
	return &Handler{sup: sup, log: log}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/streams", h.CreateStream).Methods("POST")
	r.HandleFunc("/api/streams", h.ListStreams).Methods("GET")
	r.HandleFunc("/api/streams/{id}", h.GetStream).Methods("GET")
	r.HandleFunc("/api/streams/{id}", h.RemoveStream).Methods("DELETE")
	r.HandleFunc("/api/streams/{id}/start", h.StartStream).Methods("POST")
	r.HandleFunc("/api/streams/{id}/stop", h.StopStream).Methods("POST")
	r.HandleFunc("/api/streams/{id}/logs", h.GetStreamLogs).Methods("GET")
	r.HandleFunc("/api/active", h.ListActive).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// StreamView is the wire form of a stream job. The stream key is replaced
// by its masked rendering.
type StreamView struct {
	ID             int       `json:"id"`
	VideoPath      string    `json:"video_path"`
	Duration       string    `json:"duration,omitempty"`
	ScheduledStart string    `json:"scheduled_start"`
	StreamKey      string    `json:"stream_key"`
	Vertical       bool      `json:"vertical"`
	Quality        string    `json:"quality"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func viewOf(job models.StreamJob) StreamView {
	return StreamView{
		ID:             job.ID,
		VideoPath:      job.VideoPath,
		Duration:       job.Duration,
		ScheduledStart: job.ScheduledStart,
		StreamKey:      job.MaskedKey(),
		Vertical:       job.Vertical,
		Quality:        string(job.Quality),
		Status:         job.Status.String(),
		CreatedAt:      job.CreatedAt,
	}
}

// CreateStreamRequest is the payload for POST /api/streams.
type CreateStreamRequest struct {
	VideoPath      string `json:"video_path"`
	Duration       string `json:"duration"`
	ScheduledStart string `json:"scheduled_start"`
	StreamKey      string `json:"stream_key"`
	Vertical       bool   `json:"vertical"`
	Quality        string `json:"quality"`
}

func (h *Handler) streamID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return 0, fmt.Errorf("stream id must be a number")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// CreateStream adds a new waiting stream to the catalog.
func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	var req CreateStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	quality, err := models.ParseQuality(req.Quality)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.sup.Add(models.StreamJob{
		VideoPath:      req.VideoPath,
		Duration:       req.Duration,
		ScheduledStart: req.ScheduledStart,
		StreamKey:      req.StreamKey,
		Vertical:       req.Vertical,
		Quality:        quality,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := h.sup.Get(id)
	if err != nil {
		http.Error(w, "Failed to read created stream", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(job))
}

// ListStreams returns the whole catalog.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	jobs := h.sup.List()
	views := make([]StreamView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"streams": views,
		"count":   len(views),
	})
}

// GetStream returns one stream by id.
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	id, err := h.streamID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := h.sup.Get(id)
	if err != nil {
		if err == store.ErrJobNotFound {
			http.Error(w, "Stream not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get stream", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

// StartStream launches the encoder for a waiting stream.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	id, err := h.streamID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sup.Start(id); err != nil {
		if err == store.ErrJobNotFound {
			http.Error(w, "Stream not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "started",
		"stream_id": id,
	})
}

// StopStream terminates a stream's encoder. Stopping an already stopped
// stream succeeds.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	id, err := h.streamID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sup.Stop(id); err != nil {
		if err == store.ErrJobNotFound {
			http.Error(w, "Stream not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "stopped",
		"stream_id": id,
	})
}

// RemoveStream deletes a terminal stream from the catalog.
func (h *Handler) RemoveStream(w http.ResponseWriter, r *http.Request) {
	id, err := h.streamID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sup.Remove(id); err != nil {
		if err == store.ErrJobNotFound {
			http.Error(w, "Stream not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "removed",
		"stream_id": id,
	})
}

// GetStreamLogs returns the tail of a stream's encoder log. The lines query
// parameter bounds the tail; it defaults to 100.
func (h *Handler) GetStreamLogs(w http.ResponseWriter, r *http.Request) {
	id, err := h.streamID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	maxLines := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "lines must be a positive number", http.StatusBadRequest)
			return
		}
		maxLines = n
	}

	lines, err := h.sup.Logs(id, maxLines)
	if err != nil {
		if err == store.ErrJobNotFound {
			http.Error(w, "Stream not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to read logs", http.StatusInternalServerError)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stream_id": id,
		"lines":     lines,
	})
}

// ActiveView is the wire form of one running encoder.
type ActiveView struct {
	StreamID  int       `json:"stream_id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// ListActive returns the pid map of running encoders.
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	views := make([]ActiveView, 0)
	for _, job := range h.sup.List() {
		if rec, ok := h.sup.Active(job.ID); ok {
			views = append(views, ActiveView{StreamID: job.ID, PID: rec.PID, StartedAt: rec.StartedAt})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active": views,
		"count":  len(views),
	})
}

// Health returns the supervisor's health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"active_streams": h.sup.ActiveCount(),
	})
}
