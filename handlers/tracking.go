package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"securelc/location"
)

// TrackingControl is the coordinator surface the tracking endpoints
// drive.
type TrackingControl interface {
	StartTracking(ctx context.Context, requestID string) error
	StopTracking() error
	Tracking() (location.State, string)
}

type TrackingHandler struct {
	control TrackingControl
	log     *zap.SugaredLogger
}

func NewTrackingHandler(control TrackingControl, logger *zap.SugaredLogger) *TrackingHandler {
	return &TrackingHandler{control: control, log: logger}
}

type trackingStatus struct {
	State     string `json:"state"`
	RequestID string `json:"request_id,omitempty"`
}

// Start handles POST /api/tracking/start?id= — id defaults to the
// active job.
func (h *TrackingHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if err := h.control.StartTracking(r.Context(), id); err != nil {
		writeError(w, err.Error(), statusFromError(err))
		return
	}
	state, requestID := h.control.Tracking()
	writeJSON(w, http.StatusOK, trackingStatus{State: state.String(), RequestID: requestID})
}

// Stop handles POST /api/tracking/stop. Stopping an idle tracker is
// success.
func (h *TrackingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.control.StopTracking(); err != nil {
		writeError(w, err.Error(), statusFromError(err))
		return
	}
	state, _ := h.control.Tracking()
	writeJSON(w, http.StatusOK, trackingStatus{State: state.String()})
}

// Status handles GET /api/tracking/status
func (h *TrackingHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, requestID := h.control.Tracking()
	writeJSON(w, http.StatusOK, trackingStatus{State: state.String(), RequestID: requestID})
}
