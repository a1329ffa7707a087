package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"securelc/errs"
	"securelc/models"
)

// State is the tracker lifecycle state.
type State int32

const (
	StateInactive State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// SampleStore persists GPS samples.
type SampleStore interface {
	AppendLocation(ctx context.Context, sample *models.LocationSample) error
}

// SessionSource reads the current authenticated session.
type SessionSource func() *models.Session

const persistTimeout = 15 * time.Second

// Tracker coordinates the background sampling job for the active line
// clear request. It is the single writer of its own state flag; the
// flag resets to inactive on process restart regardless of platform
// state.
type Tracker struct {
	provider Provider
	store    SampleStore
	session  SessionSource
	opts     WatchOptions
	log      *zap.SugaredLogger

	mu        sync.Mutex
	state     State
	requestID string
	cancel    context.CancelFunc
	done      chan struct{}

	ticks chan models.LocationSample
}

// NewTracker builds an inactive tracker. Zero options default to the
// fleet's 30 second / 10 meter sampling policy.
func NewTracker(provider Provider, store SampleStore, session SessionSource, opts WatchOptions, logger *zap.SugaredLogger) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.MinDistance <= 0 {
		opts.MinDistance = 10
	}
	return &Tracker{
		provider: provider,
		store:    store,
		session:  session,
		opts:     opts,
		log:      logger,
		ticks:    make(chan models.LocationSample, 16),
	}
}

// Start begins tracking for the given request. Foreground permission is
// mandatory; missing background permission only degrades sampling. On
// any failure the tracker returns to inactive.
func (t *Tracker) Start(ctx context.Context, requestID string) error {
	sess := t.session()
	if sess == nil {
		return fmt.Errorf("no authenticated user for GPS tracking: %w", errs.ErrUnauthenticated)
	}
	if requestID == "" {
		return fmt.Errorf("no request for GPS tracking: %w", errs.ErrInvalidArgument)
	}

	t.mu.Lock()
	if t.state != StateInactive {
		t.mu.Unlock()
		return fmt.Errorf("tracking already %s: %w", t.state, errs.ErrInvalidArgument)
	}
	t.state = StateStarting
	t.requestID = requestID
	t.mu.Unlock()

	t.log.Infof("🚀 Starting GPS tracking for request: %s", requestID)

	perms, err := t.provider.RequestPermissions(ctx)
	if err != nil {
		t.reset()
		return fmt.Errorf("location permission request failed: %w", err)
	}
	if !perms.Foreground {
		t.reset()
		t.log.Warn("❌ Foreground location permission denied")
		return fmt.Errorf("foreground location access: %w", errs.ErrPermissionDenied)
	}
	if !perms.Background {
		t.log.Warn("⚠️  Background location permission denied - foreground only")
	}

	// Initial fix, best effort.
	if fix, err := t.provider.Current(ctx); err == nil {
		t.persist(sess, requestID, fix)
	} else {
		t.log.Warnf("⚠️  Could not get initial location: %v", err)
	}

	// The watch outlives the Start call; its lifetime is "until Stop()
	// or process restart".
	watchCtx, cancel := context.WithCancel(context.Background())
	fixes, err := t.provider.Watch(watchCtx, t.opts)
	if err != nil {
		cancel()
		t.reset()
		return fmt.Errorf("failed to register location updates: %w", err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.state = StateActive
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go t.run(sess, requestID, fixes, done)

	t.log.Info("✅ GPS tracking started")
	return nil
}

// run consumes fixes until the watch ends.
func (t *Tracker) run(sess *models.Session, requestID string, fixes <-chan Fix, done chan struct{}) {
	defer close(done)
	for fix := range fixes {
		t.persist(sess, requestID, fix)
	}
}

// persist writes one sample; tick failures are logged, never fatal.
func (t *Tracker) persist(sess *models.Session, requestID string, fix Fix) {
	sample := models.LocationSample{
		ID:              uuid.NewString(),
		UserID:          sess.UID,
		UserEmail:       sess.Email,
		Latitude:        fix.Latitude,
		Longitude:       fix.Longitude,
		Accuracy:        fix.Accuracy,
		Altitude:        fix.Altitude,
		Heading:         fix.Heading,
		Speed:           fix.Speed,
		DeviceTimestamp: fix.Timestamp,
		RequestID:       requestID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := t.store.AppendLocation(ctx, &sample); err != nil {
		t.log.Warnf("⚠️  Failed to save location tick: %v", err)
		return
	}

	// Fan out to local observers without ever blocking the tick path.
	select {
	case t.ticks <- sample:
	default:
	}
}

// Stop ends tracking. Deregistration is best effort: stopping a tracker
// that was not running is success, and the tracker always ends
// inactive.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	if t.state == StateInactive {
		t.mu.Unlock()
		t.log.Info("ℹ️  GPS tracking was not running or already stopped")
		return nil
	}
	t.state = StateStopping
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.done = nil
	t.requestID = ""
	t.mu.Unlock()

	t.log.Info("🛑 Stopping GPS tracking...")
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	t.mu.Lock()
	t.state = StateInactive
	t.mu.Unlock()

	t.log.Info("✅ GPS tracking stopped")
	return nil
}

// Status reads the process-wide flag; the platform is not queried.
func (t *Tracker) Status() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateActive {
		return StateActive
	}
	return StateInactive
}

// ActiveRequest returns the request being tracked, or empty.
func (t *Tracker) ActiveRequest() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestID
}

// Ticks exposes persisted samples to local observers. Slow consumers
// miss ticks rather than stall sampling.
func (t *Tracker) Ticks() <-chan models.LocationSample {
	return t.ticks
}

func (t *Tracker) reset() {
	t.mu.Lock()
	t.state = StateInactive
	t.requestID = ""
	t.mu.Unlock()
}
