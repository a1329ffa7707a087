// Package notify handles push notification setup: permission,
// Expo push token retrieval, token persistence, and delivery listeners.
// Every failure here degrades silently; notifications are optional and
// must never block the request-submission flow.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"securelc/errs"
	"securelc/models"
)

// DefaultExpoEndpoint is the production Expo push API base URL.
const DefaultExpoEndpoint = "https://exp.host/--/api/v2/push"

// Platform abstracts the device notification capability.
type Platform interface {
	// RequestPermission prompts for notification permission.
	RequestPermission(ctx context.Context) (bool, error)
	// PushToken retrieves this device's push-delivery token.
	PushToken(ctx context.Context) (string, error)
}

// TokenStore persists push tokens.
type TokenStore interface {
	SavePushToken(ctx context.Context, token *models.PushToken) error
}

// EventSource delivers notification documents written by the approval
// workflow.
type EventSource interface {
	SubscribeNotifications(ctx context.Context, ownerID string, onEvent func([]models.NotificationEvent)) (func(), error)
}

// SessionSource reads the current authenticated session.
type SessionSource func() *models.Session

// Notifier wires permission, token persistence and listeners together.
type Notifier struct {
	platform Platform
	tokens   TokenStore
	events   EventSource
	session  SessionSource
	log      *zap.SugaredLogger
}

// NewNotifier builds a notifier; platform may be the Expo
// implementation or the unsupported stub.
func NewNotifier(platform Platform, tokens TokenStore, events EventSource, session SessionSource, logger *zap.SugaredLogger) *Notifier {
	return &Notifier{
		platform: platform,
		tokens:   tokens,
		events:   events,
		session:  session,
		log:      logger,
	}
}

// RequestPermission asks for permission and retrieves the push token.
// Denied, unsupported and platform errors all come back as a tagged
// error; callers that want the legacy opaque behavior use Setup.
func (n *Notifier) RequestPermission(ctx context.Context) (string, error) {
	granted, err := n.platform.RequestPermission(ctx)
	if err != nil {
		return "", fmt.Errorf("notification permission: %w", err)
	}
	if !granted {
		return "", fmt.Errorf("notification permission: %w", errs.ErrPermissionDenied)
	}
	token, err := n.platform.PushToken(ctx)
	if err != nil {
		return "", fmt.Errorf("push token: %w", err)
	}
	return token, nil
}

// PersistToken stores the token on the user document. Without an
// authenticated session this is a silent no-op.
func (n *Notifier) PersistToken(ctx context.Context, token string) error {
	sess := n.session()
	if sess == nil || token == "" {
		n.log.Info("No authenticated user or push token")
		return nil
	}
	err := n.tokens.SavePushToken(ctx, &models.PushToken{
		UserID:          sess.UID,
		Token:           token,
		Email:           sess.Email,
		LastTokenUpdate: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("persist push token: %w", err)
	}
	n.log.Info("✅ Push token saved")
	return nil
}

// Setup performs the complete flow: permission, token, persistence.
// Any failure collapses to an empty token and a log line so the core
// request flow is never blocked.
func (n *Notifier) Setup(ctx context.Context) string {
	token, err := n.RequestPermission(ctx)
	if err != nil {
		n.log.Infof("📱 Push notifications unavailable: %v", err)
		return ""
	}
	if err := n.PersistToken(ctx, token); err != nil {
		n.log.Warnf("⚠️  %v", err)
	}
	return token
}

// Listener is a live notification subscription handle.
type Listener struct {
	stop func()
	once sync.Once
}

// Stop releases the subscription.
func (l *Listener) Stop() {
	l.once.Do(l.stop)
}

// OnForeground registers a callback for notifications arriving while
// the agent runs. The first snapshot primes the seen set; only events
// arriving after registration are delivered. Returns nil when the
// capability is unavailable (no session, no event source).
func (n *Notifier) OnForeground(ctx context.Context, cb func(models.NotificationEvent)) *Listener {
	sess := n.session()
	if sess == nil || n.events == nil {
		n.log.Info("Notification listeners not available in this environment")
		return nil
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	primed := false

	stop, err := n.events.SubscribeNotifications(ctx, sess.UID, func(events []models.NotificationEvent) {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range events {
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			if primed {
				cb(ev)
			}
		}
		primed = true
	})
	if err != nil {
		n.log.Warnf("⚠️  Could not subscribe to notifications: %v", err)
		return nil
	}
	return &Listener{stop: stop}
}

// OnResponse registers a callback for the user acting on a delivered
// notification. The headless agent has no notification surface to act
// on, so this degrades to a no-op handle, mirroring the platform
// capability being absent.
func (n *Notifier) OnResponse(ctx context.Context, cb func(models.NotificationEvent)) *Listener {
	n.log.Info("Notification listeners not available in this environment")
	return nil
}

// --- Platform implementations ---

// ExpoPlatform retrieves push tokens from the Expo push service.
type ExpoPlatform struct {
	endpoint  string
	projectID string
	deviceID  string
	httpc     *http.Client
}

// NewExpoPlatform creates the Expo-backed platform. The device ID is
// generated per process; Expo returns a stable token per device record.
func NewExpoPlatform(endpoint, projectID string) *ExpoPlatform {
	return &ExpoPlatform{
		endpoint:  endpoint,
		projectID: projectID,
		deviceID:  uuid.NewString(),
		httpc:     &http.Client{Timeout: 15 * time.Second},
	}
}

// RequestPermission always grants: a headless agent has no permission
// prompt to refuse.
func (p *ExpoPlatform) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

// PushToken asks the Expo push service for this device's token.
func (p *ExpoPlatform) PushToken(ctx context.Context) (string, error) {
	if p.projectID == "" {
		return "", fmt.Errorf("no Expo project configured: %w", errs.ErrUnsupported)
	}
	body, _ := json.Marshal(map[string]string{
		"type":      "expo",
		"deviceId":  p.deviceID,
		"projectId": p.projectID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/getExpoPushToken", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("push service unreachable: %w", errs.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("push service returned %d: %w", resp.StatusCode, errs.ErrUpstream)
	}
	var out struct {
		Data struct {
			ExpoPushToken string `json:"expoPushToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.Data.ExpoPushToken == "" {
		return "", fmt.Errorf("empty push token: %w", errs.ErrUpstream)
	}
	return out.Data.ExpoPushToken, nil
}

// UnsupportedPlatform is used in environments without a push capability
// (development sandboxes). Everything degrades to denial.
type UnsupportedPlatform struct{}

func (UnsupportedPlatform) RequestPermission(ctx context.Context) (bool, error) {
	return false, nil
}

func (UnsupportedPlatform) PushToken(ctx context.Context) (string, error) {
	return "", errs.ErrUnsupported
}
