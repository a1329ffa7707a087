package notify

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

type fakePlatform struct {
	granted  bool
	permErr  error
	token    string
	tokenErr error
}

func (f *fakePlatform) RequestPermission(_ context.Context) (bool, error) {
	return f.granted, f.permErr
}

func (f *fakePlatform) PushToken(_ context.Context) (string, error) {
	return f.token, f.tokenErr
}

type fakeTokenStore struct {
	mu     sync.Mutex
	tokens []models.PushToken
	err    error
}

func (f *fakeTokenStore) SavePushToken(_ context.Context, token *models.PushToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tokens = append(f.tokens, *token)
	return nil
}

type fakeEventSource struct {
	onEvent func([]models.NotificationEvent)
	stopped int
}

func (f *fakeEventSource) SubscribeNotifications(_ context.Context, _ string, onEvent func([]models.NotificationEvent)) (func(), error) {
	f.onEvent = onEvent
	return func() { f.stopped++ }, nil
}

func operatorSession() *models.Session {
	return &models.Session{UID: "user-1", Email: "crew@utility.example"}
}

func newTestNotifier(p Platform, tokens *fakeTokenStore, events *fakeEventSource, sess *models.Session) *Notifier {
	var src EventSource
	if events != nil {
		src = events
	}
	return NewNotifier(p, tokens, src, func() *models.Session { return sess }, zap.NewNop().Sugar())
}

func TestRequestPermissionDenied(t *testing.T) {
	n := newTestNotifier(&fakePlatform{granted: false}, &fakeTokenStore{}, nil, operatorSession())

	_, err := n.RequestPermission(context.Background())
	require.ErrorIs(t, err, errs.ErrPermissionDenied)
}

func TestRequestPermissionUnsupportedPlatform(t *testing.T) {
	n := newTestNotifier(UnsupportedPlatform{}, &fakeTokenStore{}, nil, operatorSession())

	_, err := n.RequestPermission(context.Background())
	require.ErrorIs(t, err, errs.ErrPermissionDenied)
}

func TestPersistTokenWithoutSessionIsNoOp(t *testing.T) {
	tokens := &fakeTokenStore{}
	n := newTestNotifier(&fakePlatform{granted: true, token: "ExponentPushToken[abc]"}, tokens, nil, nil)

	require.NoError(t, n.PersistToken(context.Background(), "ExponentPushToken[abc]"))
	assert.Empty(t, tokens.tokens)
}

func TestSetupPersistsToken(t *testing.T) {
	tokens := &fakeTokenStore{}
	n := newTestNotifier(&fakePlatform{granted: true, token: "ExponentPushToken[abc]"}, tokens, nil, operatorSession())

	token := n.Setup(context.Background())
	assert.Equal(t, "ExponentPushToken[abc]", token)
	require.Len(t, tokens.tokens, 1)
	assert.Equal(t, "user-1", tokens.tokens[0].UserID)
	assert.Equal(t, "ExponentPushToken[abc]", tokens.tokens[0].Token)
}

func TestSetupCollapsesFailuresToEmptyToken(t *testing.T) {
	tokens := &fakeTokenStore{}
	n := newTestNotifier(&fakePlatform{granted: true, tokenErr: errors.New("push service down")}, tokens, nil, operatorSession())

	assert.Empty(t, n.Setup(context.Background()))
	assert.Empty(t, tokens.tokens)
}

func TestOnForegroundDeliversOnlyNewEvents(t *testing.T) {
	events := &fakeEventSource{}
	n := newTestNotifier(&fakePlatform{granted: true}, &fakeTokenStore{}, events, operatorSession())

	var mu sync.Mutex
	var received []models.NotificationEvent
	listener := n.OnForeground(context.Background(), func(ev models.NotificationEvent) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	})
	require.NotNil(t, listener)

	old := models.NotificationEvent{ID: "n1", Title: "Request Approved", SentAt: time.Now().Add(-time.Hour)}
	events.onEvent([]models.NotificationEvent{old})
	assert.Empty(t, received, "historical events prime the seen set silently")

	fresh := models.NotificationEvent{ID: "n2", Title: "Request Approved", Body: "Feeder 1", SentAt: time.Now()}
	events.onEvent([]models.NotificationEvent{fresh, old})
	require.Len(t, received, 1)
	assert.Equal(t, "n2", received[0].ID)

	// Redelivery of the same snapshot fires nothing.
	events.onEvent([]models.NotificationEvent{fresh, old})
	assert.Len(t, received, 1)

	listener.Stop()
	listener.Stop()
	assert.Equal(t, 1, events.stopped)
}

func TestOnForegroundWithoutSessionDegrades(t *testing.T) {
	n := newTestNotifier(&fakePlatform{}, &fakeTokenStore{}, &fakeEventSource{}, nil)

	assert.Nil(t, n.OnForeground(context.Background(), func(models.NotificationEvent) {}))
}

func TestOnResponseDegradesToNoOp(t *testing.T) {
	n := newTestNotifier(&fakePlatform{}, &fakeTokenStore{}, &fakeEventSource{}, operatorSession())

	assert.Nil(t, n.OnResponse(context.Background(), func(models.NotificationEvent) {}))
}
