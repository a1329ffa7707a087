package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"securelc/errs"
	"securelc/models"
)

type fakeProvider struct {
	perms    Permissions
	permsErr error
	fix      Fix
	fixErr   error
	watchErr error
	fixes    chan Fix
}

var _ Provider = (*fakeProvider)(nil)

func (f *fakeProvider) RequestPermissions(_ context.Context) (Permissions, error) {
	return f.perms, f.permsErr
}

func (f *fakeProvider) Current(_ context.Context) (Fix, error) {
	return f.fix, f.fixErr
}

func (f *fakeProvider) Watch(ctx context.Context, _ WatchOptions) (<-chan Fix, error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	out := make(chan Fix)
	go func() {
		defer close(out)
		for {
			select {
			case fix, ok := <-f.fixes:
				if !ok {
					return
				}
				select {
				case out <- fix:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type fakeSampleStore struct {
	mu      sync.Mutex
	samples []models.LocationSample
	err     error
}

func (f *fakeSampleStore) AppendLocation(_ context.Context, sample *models.LocationSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.samples = append(f.samples, *sample)
	return nil
}

func (f *fakeSampleStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func sessionSource(sess *models.Session) SessionSource {
	return func() *models.Session { return sess }
}

func fieldSession() *models.Session {
	return &models.Session{UID: "user-1", Email: "crew@utility.example"}
}

func newTestTracker(p Provider, s SampleStore, sess *models.Session) *Tracker {
	return NewTracker(p, s, sessionSource(sess), WatchOptions{}, zap.NewNop().Sugar())
}

func TestStartRequiresSession(t *testing.T) {
	tr := newTestTracker(&fakeProvider{}, &fakeSampleStore{}, nil)

	err := tr.Start(context.Background(), "req1")
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	assert.Equal(t, StateInactive, tr.Status())
}

func TestStartRequiresRequestID(t *testing.T) {
	tr := newTestTracker(&fakeProvider{}, &fakeSampleStore{}, fieldSession())

	err := tr.Start(context.Background(), "")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	assert.Equal(t, StateInactive, tr.Status())
}

func TestStartForegroundPermissionDenied(t *testing.T) {
	provider := &fakeProvider{perms: Permissions{Foreground: false}}
	store := &fakeSampleStore{}
	tr := newTestTracker(provider, store, fieldSession())

	err := tr.Start(context.Background(), "req1")
	require.ErrorIs(t, err, errs.ErrPermissionDenied)
	assert.Equal(t, StateInactive, tr.Status())
	assert.Zero(t, store.count(), "no sample may be written on denial")
}

func TestStartPermissionRequestError(t *testing.T) {
	provider := &fakeProvider{permsErr: errors.New("platform exploded")}
	tr := newTestTracker(provider, &fakeSampleStore{}, fieldSession())

	err := tr.Start(context.Background(), "req1")
	require.Error(t, err)
	assert.Equal(t, StateInactive, tr.Status())
}

func TestStartWatchRegistrationFails(t *testing.T) {
	provider := &fakeProvider{
		perms:    Permissions{Foreground: true, Background: true},
		fixErr:   errors.New("no fix"),
		watchErr: errors.New("registration failed"),
	}
	tr := newTestTracker(provider, &fakeSampleStore{}, fieldSession())

	err := tr.Start(context.Background(), "req1")
	require.Error(t, err)
	assert.Equal(t, StateInactive, tr.Status())
}

func TestStartPersistsInitialFixAndTicks(t *testing.T) {
	provider := &fakeProvider{
		perms: Permissions{Foreground: true, Background: false},
		fix:   Fix{Latitude: 6.9271, Longitude: 79.8612, Accuracy: 5, Timestamp: time.Now()},
		fixes: make(chan Fix),
	}
	store := &fakeSampleStore{}
	tr := newTestTracker(provider, store, fieldSession())

	require.NoError(t, tr.Start(context.Background(), "req1"))
	t.Cleanup(func() { _ = tr.Stop() })
	assert.Equal(t, StateActive, tr.Status())
	assert.Equal(t, "req1", tr.ActiveRequest())

	// Initial one-shot fix.
	initial := <-tr.Ticks()
	assert.Equal(t, "req1", initial.RequestID)
	assert.Equal(t, "user-1", initial.UserID)
	assert.Equal(t, 6.9271, initial.Latitude)

	// A background tick flows through the store and the tick channel.
	provider.fixes <- Fix{Latitude: 6.9280, Longitude: 79.8620, Accuracy: 8, Timestamp: time.Now()}
	select {
	case tick := <-tr.Ticks():
		assert.Equal(t, "req1", tick.RequestID)
		assert.Equal(t, 6.9280, tick.Latitude)
	case <-time.After(2 * time.Second):
		t.Fatal("tick was not delivered")
	}
	assert.Equal(t, 2, store.count())
}

func TestStartWhileActiveRejected(t *testing.T) {
	provider := &fakeProvider{
		perms: Permissions{Foreground: true, Background: true},
		fixes: make(chan Fix),
	}
	tr := newTestTracker(provider, &fakeSampleStore{}, fieldSession())

	require.NoError(t, tr.Start(context.Background(), "req1"))
	t.Cleanup(func() { _ = tr.Stop() })

	err := tr.Start(context.Background(), "req2")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	assert.Equal(t, "req1", tr.ActiveRequest())
}

func TestStopIdempotentOnInactive(t *testing.T) {
	tr := newTestTracker(&fakeProvider{}, &fakeSampleStore{}, fieldSession())

	require.NoError(t, tr.Stop())
	assert.Equal(t, StateInactive, tr.Status())
	require.NoError(t, tr.Stop())
	assert.Equal(t, StateInactive, tr.Status())
}

func TestStopEndsTracking(t *testing.T) {
	provider := &fakeProvider{
		perms: Permissions{Foreground: true, Background: true},
		fixes: make(chan Fix),
	}
	tr := newTestTracker(provider, &fakeSampleStore{}, fieldSession())

	require.NoError(t, tr.Start(context.Background(), "req1"))
	require.NoError(t, tr.Stop())
	assert.Equal(t, StateInactive, tr.Status())
	assert.Empty(t, tr.ActiveRequest())

	// Stopping again is still success.
	require.NoError(t, tr.Stop())
}

func TestTickFailureIsNotFatal(t *testing.T) {
	provider := &fakeProvider{
		perms: Permissions{Foreground: true, Background: true},
		fixes: make(chan Fix),
	}
	store := &fakeSampleStore{err: errors.New("store down")}
	tr := newTestTracker(provider, store, fieldSession())

	require.NoError(t, tr.Start(context.Background(), "req1"))
	t.Cleanup(func() { _ = tr.Stop() })

	provider.fixes <- Fix{Latitude: 1, Longitude: 1, Timestamp: time.Now()}
	// The tracker stays active; failed ticks are logged and dropped.
	assert.Equal(t, StateActive, tr.Status())
}
