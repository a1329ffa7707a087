// Package coordinator ties the request repository, the media uploader
// and the location tracker together around the "active job" concept:
// the single approved-but-not-completed request the user is working.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"securelc/errs"
	"securelc/location"
	"securelc/models"
)

// RequestStore is the repository surface the coordinator needs.
type RequestStore interface {
	CreateRequest(ctx context.Context, ownerID string, in models.RequestInput) (*models.Request, error)
	UpdateRequest(ctx context.Context, requestID string, updates map[string]interface{}) error
	DeleteRequest(ctx context.Context, requestID string) error
	SubscribeRequests(ctx context.Context, ownerID string, onChange func([]models.Request)) (func(), error)
}

// Uploader posts a local audio file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// JobTracker is the location tracker surface the coordinator drives.
type JobTracker interface {
	Start(ctx context.Context, requestID string) error
	Stop() error
	Status() location.State
	ActiveRequest() string
}

// Gateway exposes the session to the coordinator.
type Gateway interface {
	Current() *models.Session
	OnChange(func(*models.Session))
}

// SubmitInput carries a new request submission.
type SubmitInput struct {
	Substation string           `json:"substation"`
	FaultType  models.FaultType `json:"fault_type"`
	Notes      string           `json:"notes,omitempty"`
	AudioPath  string           `json:"audio_path,omitempty"`
}

// Coordinator owns one repository subscription per authenticated
// session and recomputes the active job on every snapshot.
type Coordinator struct {
	store    RequestStore
	uploader Uploader
	tracker  JobTracker
	gateway  Gateway
	log      *zap.SugaredLogger

	mu       sync.RWMutex
	requests []models.Request
	active   *models.Request
	stopSub  func()
	runCtx   context.Context
}

// New builds an idle coordinator; Run attaches it to the session.
func New(store RequestStore, uploader Uploader, tracker JobTracker, gateway Gateway, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		store:    store,
		uploader: uploader,
		tracker:  tracker,
		gateway:  gateway,
		log:      logger,
	}
}

// Run subscribes to session transitions for the life of ctx. Called
// once per process.
func (c *Coordinator) Run(ctx context.Context) {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	c.gateway.OnChange(c.handleSession)
	c.handleSession(c.gateway.Current())

	go func() {
		<-ctx.Done()
		c.teardown()
	}()
}

// handleSession swaps the repository subscription on sign-in/out.
// Losing the session tears down the subscription but deliberately does
// not stop tracking; tracking lifetime is tied to user action.
func (c *Coordinator) handleSession(sess *models.Session) {
	c.teardown()
	if sess == nil {
		return
	}

	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	stop, err := c.store.SubscribeRequests(ctx, sess.UID, c.onSnapshot)
	if err != nil {
		c.log.Errorf("❌ Failed to subscribe to requests for %s: %v", sess.UID, err)
		return
	}
	c.mu.Lock()
	c.stopSub = stop
	c.mu.Unlock()
	c.log.Infof("📡 Subscribed to requests for user %s", sess.UID)
}

func (c *Coordinator) teardown() {
	c.mu.Lock()
	stop := c.stopSub
	c.stopSub = nil
	c.requests = nil
	c.active = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// onSnapshot stores the latest result set and recomputes the active
// job: the approved request with the maximum creation timestamp,
// tie-broken by ascending store ID. When none is approved the pointer
// clears but any running tracking continues until the user stops it.
func (c *Coordinator) onSnapshot(requests []models.Request) {
	var active *models.Request
	for i := range requests {
		req := &requests[i]
		if req.Status != models.StatusApproved {
			continue
		}
		if active == nil ||
			req.CreatedAt.After(active.CreatedAt) ||
			(req.CreatedAt.Equal(active.CreatedAt) && req.ID < active.ID) {
			active = req
		}
	}

	c.mu.Lock()
	c.requests = requests
	prev := c.active
	c.active = active
	c.mu.Unlock()

	switch {
	case active != nil && (prev == nil || prev.ID != active.ID):
		c.log.Infof("🔧 Active job: %s (%s)", active.ID, active.Substation)
	case active == nil && prev != nil:
		c.log.Info("ℹ️  No approved request; active job cleared")
	}
}

// Submit uploads the voice note (when present) and creates a pending
// request. Any upload failure aborts the submission: no document is
// created and the error surfaces as the user's alert. Resubmission with
// the same inputs is allowed.
func (c *Coordinator) Submit(ctx context.Context, in SubmitInput) (*models.Request, error) {
	sess := c.gateway.Current()
	if sess == nil {
		return nil, fmt.Errorf("sign in to submit a request: %w", errs.ErrUnauthenticated)
	}
	if in.Substation == "" {
		return nil, fmt.Errorf("substation is required: %w", errs.ErrInvalidArgument)
	}
	if !in.FaultType.Valid() {
		return nil, fmt.Errorf("unknown fault type %q: %w", in.FaultType, errs.ErrInvalidArgument)
	}

	var audioURL string
	if in.AudioPath != "" {
		url, err := c.uploader.Upload(ctx, in.AudioPath)
		if err != nil {
			c.log.Errorf("❌ Voice note upload failed: %v", err)
			return nil, fmt.Errorf("upload failed, please try again: %w", err)
		}
		audioURL = url
	}

	req, err := c.store.CreateRequest(ctx, sess.UID, models.RequestInput{
		Substation: in.Substation,
		FaultType:  in.FaultType,
		Notes:      in.Notes,
		AudioURL:   audioURL,
	})
	if err != nil {
		c.log.Errorf("❌ Failed to save request: %v", err)
		return nil, fmt.Errorf("failed to save request: %w", err)
	}
	c.log.Infof("📤 Line clear request submitted: %s (%s)", req.ID, req.Substation)
	return req, nil
}

// MarkComplete stops tracking, then sets the request to completed with
// a completion timestamp, in that order. If the update fails after the
// stop succeeded the job is left stopped-but-approved; there is no
// compensating restart.
func (c *Coordinator) MarkComplete(ctx context.Context, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("missing request id: %w", errs.ErrInvalidArgument)
	}
	if req := c.find(requestID); req != nil && !req.Status.CanTransition(models.StatusCompleted) {
		return fmt.Errorf("cannot complete request in status %q: %w", req.Status, errs.ErrInvalidArgument)
	}

	if err := c.tracker.Stop(); err != nil {
		c.log.Warnf("⚠️  Stop tracking before completion: %v", err)
	}

	updates := map[string]interface{}{
		"status":      models.StatusCompleted,
		"completedAt": time.Now().UTC(),
	}
	if err := c.store.UpdateRequest(ctx, requestID, updates); err != nil {
		c.log.Errorf("❌ Request %s left stopped but not completed: %v", requestID, err)
		return fmt.Errorf("failed to mark request complete: %w", err)
	}
	c.log.Infof("✅ Request %s marked complete", requestID)
	return nil
}

// Delete removes a request on explicit user action. Irreversible.
func (c *Coordinator) Delete(ctx context.Context, requestID string) error {
	if err := c.store.DeleteRequest(ctx, requestID); err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	c.log.Infof("🗑️  Request %s deleted", requestID)
	return nil
}

// StartTracking begins GPS tracking for the given request, defaulting
// to the active job when no ID is supplied.
func (c *Coordinator) StartTracking(ctx context.Context, requestID string) error {
	if requestID == "" {
		if active := c.ActiveJob(); active != nil {
			requestID = active.ID
		}
	}
	return c.tracker.Start(ctx, requestID)
}

// StopTracking ends GPS tracking. Stopping an idle tracker succeeds.
func (c *Coordinator) StopTracking() error {
	return c.tracker.Stop()
}

// Tracking reports the tracker state and the tracked request.
func (c *Coordinator) Tracking() (location.State, string) {
	return c.tracker.Status(), c.tracker.ActiveRequest()
}

// ActiveJob returns a copy of the active job, or nil.
func (c *Coordinator) ActiveJob() *models.Request {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return nil
	}
	cpy := *c.active
	return &cpy
}

// Requests returns the latest snapshot, newest first.
func (c *Coordinator) Requests() []models.Request {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

func (c *Coordinator) find(requestID string) *models.Request {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.requests {
		if c.requests[i].ID == requestID {
			cpy := c.requests[i]
			return &cpy
		}
	}
	return nil
}
