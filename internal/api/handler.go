// Package api serves the worker's HTTP trigger, job lookup and health probes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-renderer/internal/store"
	"github.com/tendant/simple-renderer/internal/trigger"
	"github.com/tendant/simple-renderer/pkg/schema"
)

const maxRequestBodySize = 64 << 10

// Dispatcher queues a render request.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID, trigger string) error
}

// JobReader loads a job record by session id.
type JobReader interface {
	Load(ctx context.Context, sessionID string) (*schema.JobRecord, error)
}

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Handler contains the HTTP handlers.
type Handler struct {
	jobs       JobReader
	dispatcher Dispatcher
	checks     map[string]CheckFunc
	logger     *slog.Logger
}

func NewHandler(jobs JobReader, d Dispatcher, checks map[string]CheckFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{jobs: jobs, dispatcher: d, checks: checks, logger: logger}
}

type processResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Process handles POST /process. The job runs in the background; the
// response only says that it was queued.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var evt schema.StatusEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	evt.SessionID = strings.TrimSpace(evt.SessionID)
	if evt.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), evt.SessionID, "http"); err != nil {
		switch {
		case errors.Is(err, trigger.ErrQueueFull), errors.Is(err, trigger.ErrStopped):
			h.logger.Warn("render request refused", "session_id", evt.SessionID, "err", err)
			h.writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("dispatch render request failed", "session_id", evt.SessionID, "err", err)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusAccepted, processResponse{Status: "Processing started"})
}

// GetJob handles GET /jobs/{sessionId}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	rec, err := h.jobs.Load(r.Context(), sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "job not found")
		return
	case err != nil:
		h.logger.Error("load job failed", "session_id", sessionID, "err", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// Livez reports that the process is up. Dependencies are not checked.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Readyz runs every dependency check and returns 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	h.writeJSON(w, code, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}
