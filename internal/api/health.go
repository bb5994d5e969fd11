package api

import (
	"net/http"
	"time"

	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/transcribe"
)

// ConnChecker reports whether an optional external connection is up.
type ConnChecker interface {
	IsConnected() bool
}

// QueueSource exposes worker-pool statistics.
type QueueSource interface {
	Stats() transcribe.QueueStats
}

// ModelState reports whether the inference bundle is loaded.
type ModelState interface {
	Initialized() bool
}

// WatcherState reports the drop-folder watcher status.
type WatcherState interface {
	Status() string
}

type HealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Checks        map[string]string      `json:"checks"`
	Queue         *transcribe.QueueStats `json:"queue,omitempty"`
}

type HealthHandler struct {
	db        *database.DB
	notifier  ConnChecker
	queue     QueueSource
	models    ModelState
	watcher   WatcherState
	version   string
	startTime time.Time
}

func NewHealthHandler(db *database.DB, notifier ConnChecker, queue QueueSource, models ModelState, watcher WatcherState, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		notifier:  notifier,
		queue:     queue,
		models:    models,
		watcher:   watcher,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if h.notifier != nil {
		if h.notifier.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	// Model loading is lazy, so an unloaded bundle is normal before the
	// first job arrives.
	if h.models != nil {
		if h.models.Initialized() {
			checks["models"] = "loaded"
		} else {
			checks["models"] = "not_loaded"
		}
	}

	if h.watcher != nil {
		checks["file_watcher"] = h.watcher.Status()
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.queue != nil {
		stats := h.queue.Stats()
		resp.Queue = &stats
	}

	WriteJSON(w, httpStatus, resp)
}
