package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"securelc/coordinator"
	"securelc/errs"
	"securelc/location"
	"securelc/models"
)

type fakeLifecycle struct {
	requests  []models.Request
	active    *models.Request
	submitErr error
	completed []string
	deleted   []string
}

var _ Lifecycle = (*fakeLifecycle)(nil)

func (f *fakeLifecycle) Submit(_ context.Context, in coordinator.SubmitInput) (*models.Request, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.Request{
		ID:         "req-1",
		Substation: in.Substation,
		FaultType:  in.FaultType,
		Status:     models.StatusPending,
	}, nil
}

func (f *fakeLifecycle) MarkComplete(_ context.Context, requestID string) error {
	f.completed = append(f.completed, requestID)
	return nil
}

func (f *fakeLifecycle) Delete(_ context.Context, requestID string) error {
	f.deleted = append(f.deleted, requestID)
	return nil
}

func (f *fakeLifecycle) Requests() []models.Request { return f.requests }
func (f *fakeLifecycle) ActiveJob() *models.Request { return f.active }

type fakeTrackingControl struct {
	state    location.State
	request  string
	startErr error
	stops    int
}

var _ TrackingControl = (*fakeTrackingControl)(nil)

func (f *fakeTrackingControl) StartTracking(_ context.Context, requestID string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.state = location.StateActive
	f.request = requestID
	return nil
}

func (f *fakeTrackingControl) StopTracking() error {
	f.stops++
	f.state = location.StateInactive
	f.request = ""
	return nil
}

func (f *fakeTrackingControl) Tracking() (location.State, string) {
	return f.state, f.request
}

func nopLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func TestSubmitRequest(t *testing.T) {
	h := NewRequestHandler(&fakeLifecycle{}, nopLog())

	body, _ := json.Marshal(coordinator.SubmitInput{
		Substation: "Feeder 1 - Substation A",
		FaultType:  models.FaultLineBreak,
	})
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/api/requests", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var req models.Request
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&req))
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, "Feeder 1 - Substation A", req.Substation)
}

func TestSubmitRequestErrorMapping(t *testing.T) {
	h := NewRequestHandler(&fakeLifecycle{
		submitErr: fmt.Errorf("upload failed: %w", errs.ErrUpstream),
	}, nopLog())

	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/api/requests", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSubmitMethodNotAllowed(t *testing.T) {
	h := NewRequestHandler(&fakeLifecycle{}, nopLog())

	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodGet, "/api/requests", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListRequests(t *testing.T) {
	active := models.Request{ID: "a1", Status: models.StatusApproved, CreatedAt: time.Now()}
	h := NewRequestHandler(&fakeLifecycle{
		requests: []models.Request{active, {ID: "p1", Status: models.StatusPending}},
		active:   &active,
	}, nopLog())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/requests", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	require.NotNil(t, resp.ActiveJob)
	assert.Equal(t, "a1", resp.ActiveJob.ID)
}

func TestCompleteRequiresID(t *testing.T) {
	lc := &fakeLifecycle{}
	h := NewRequestHandler(lc, nopLog())

	rec := httptest.NewRecorder()
	h.Complete(rec, httptest.NewRequest(http.MethodPost, "/api/requests/complete", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, lc.completed)

	rec = httptest.NewRecorder()
	h.Complete(rec, httptest.NewRequest(http.MethodPost, "/api/requests/complete?id=a1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a1"}, lc.completed)
}

func TestDeleteRequest(t *testing.T) {
	lc := &fakeLifecycle{}
	h := NewRequestHandler(lc, nopLog())

	rec := httptest.NewRecorder()
	h.Delete(rec, httptest.NewRequest(http.MethodDelete, "/api/requests?id=p1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"p1"}, lc.deleted)
}

func TestTrackingStartAndStatus(t *testing.T) {
	tc := &fakeTrackingControl{}
	h := NewTrackingHandler(tc, nopLog())

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/tracking/start?id=a1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/tracking/status", nil))
	var status trackingStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "active", status.State)
	assert.Equal(t, "a1", status.RequestID)
}

func TestTrackingStartPermissionDenied(t *testing.T) {
	tc := &fakeTrackingControl{
		startErr: fmt.Errorf("foreground location access: %w", errs.ErrPermissionDenied),
	}
	h := NewTrackingHandler(tc, nopLog())

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/tracking/start?id=a1", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTrackingStopIsAlwaysOK(t *testing.T) {
	tc := &fakeTrackingControl{}
	h := NewTrackingHandler(tc, nopLog())

	rec := httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/tracking/stop", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, tc.stops)

	rec = httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/tracking/stop", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
