package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"securelc/coordinator"
	"securelc/models"
)

// Lifecycle is the coordinator surface the request endpoints drive.
type Lifecycle interface {
	Submit(ctx context.Context, in coordinator.SubmitInput) (*models.Request, error)
	MarkComplete(ctx context.Context, requestID string) error
	Delete(ctx context.Context, requestID string) error
	Requests() []models.Request
	ActiveJob() *models.Request
}

type RequestHandler struct {
	lifecycle Lifecycle
	log       *zap.SugaredLogger
}

func NewRequestHandler(lifecycle Lifecycle, logger *zap.SugaredLogger) *RequestHandler {
	return &RequestHandler{lifecycle: lifecycle, log: logger}
}

// Submit handles POST /api/requests
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in coordinator.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.lifecycle.Submit(r.Context(), in)
	if err != nil {
		writeError(w, err.Error(), statusFromError(err))
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

type listResponse struct {
	Requests  []models.Request `json:"requests"`
	ActiveJob *models.Request  `json:"active_job,omitempty"`
	Count     int              `json:"count"`
}

// List handles GET /api/requests — the live subscription's latest
// snapshot, newest first, plus the active job.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requests := h.lifecycle.Requests()
	writeJSON(w, http.StatusOK, listResponse{
		Requests:  requests,
		ActiveJob: h.lifecycle.ActiveJob(),
		Count:     len(requests),
	})
}

// Complete handles POST /api/requests/complete?id=
func (h *RequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, "Missing request id", http.StatusBadRequest)
		return
	}
	if err := h.lifecycle.MarkComplete(r.Context(), id); err != nil {
		writeError(w, err.Error(), statusFromError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(models.StatusCompleted)})
}

// Delete handles DELETE /api/requests?id=
func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, "Missing request id", http.StatusBadRequest)
		return
	}
	if err := h.lifecycle.Delete(r.Context(), id); err != nil {
		writeError(w, err.Error(), statusFromError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "deleted": "true"})
}
