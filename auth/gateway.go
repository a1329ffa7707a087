// Package auth wraps the Firebase Identity Toolkit REST API behind a
// uniform gateway and owns the process-wide session.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"securelc/errs"
	"securelc/models"
)

// DefaultEndpoint is the production Identity Toolkit base URL.
const DefaultEndpoint = "https://identitytoolkit.googleapis.com/v1"

// Gateway performs email+password sign-in/sign-up/sign-out/reset and
// holds the current session. The gateway is the session's single
// writer; everything else reads it through Current or OnChange.
type Gateway struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
	log      *zap.SugaredLogger

	mu        sync.RWMutex
	session   *models.Session
	listeners []func(*models.Session)
}

// NewGateway creates a gateway against the given Identity Toolkit
// endpoint (DefaultEndpoint in production).
func NewGateway(endpoint, apiKey string, logger *zap.SugaredLogger) *Gateway {
	return &Gateway{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		log:      logger,
	}
}

type credentialRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type credentialResponse struct {
	IDToken      string `json:"idToken"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn authenticates an existing user and installs the session.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	resp, err := g.credentialCall(ctx, "accounts:signInWithPassword", email, password)
	if err != nil {
		return nil, err
	}
	session := g.sessionFrom(resp)
	g.setSession(session)
	g.log.Infof("✅ Signed in as %s", session.Email)
	return session, nil
}

// SignUp registers a new user and installs the session.
func (g *Gateway) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	resp, err := g.credentialCall(ctx, "accounts:signUp", email, password)
	if err != nil {
		return nil, err
	}
	session := g.sessionFrom(resp)
	g.setSession(session)
	g.log.Infof("✅ Registered new user %s", session.Email)
	return session, nil
}

// SignOut clears the session. The identity provider keeps no
// server-side session for password sign-in, so this is local.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.setSession(nil)
	g.log.Info("👋 Signed out")
	return nil
}

// ResetSecret asks the provider to email a password reset link.
// Delivery is fire-and-forget; only request acceptance is observable.
func (g *Gateway) ResetSecret(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("empty email: %w", errs.ErrInvalidArgument)
	}
	body, _ := json.Marshal(map[string]string{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	})
	var out json.RawMessage
	if err := g.post(ctx, "accounts:sendOobCode", body, &out); err != nil {
		return err
	}
	g.log.Infof("📧 Password reset requested for %s", email)
	return nil
}

// Current returns the session, or nil when signed out.
func (g *Gateway) Current() *models.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session
}

// OnChange registers a listener invoked exactly once per session
// transition (sign-in and sign-out). Listeners are never removed;
// registration is expected once per process lifetime.
func (g *Gateway) OnChange(fn func(*models.Session)) {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
}

func (g *Gateway) setSession(s *models.Session) {
	g.mu.Lock()
	prev := g.session
	if prev == nil && s == nil {
		g.mu.Unlock()
		return
	}
	if prev != nil && s != nil && prev.UID == s.UID && prev.IDToken == s.IDToken {
		g.mu.Unlock()
		return
	}
	g.session = s
	listeners := make([]func(*models.Session), len(g.listeners))
	copy(listeners, g.listeners)
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

func (g *Gateway) credentialCall(ctx context.Context, method, email, password string) (*credentialResponse, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required: %w", errs.ErrInvalidArgument)
	}
	body, _ := json.Marshal(credentialRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	var resp credentialResponse
	if err := g.post(ctx, method, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *Gateway) post(ctx context.Context, method string, body []byte, out interface{}) error {
	url := fmt.Sprintf("%s/%s?key=%s", g.endpoint, method, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", errs.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return mapProviderError(apiErr.Error.Message, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}

// mapProviderError converts Identity Toolkit error codes to sentinels.
// Codes may carry a trailing explanation ("WEAK_PASSWORD : ...").
func mapProviderError(code string, status int) error {
	switch {
	case strings.HasPrefix(code, "EMAIL_NOT_FOUND"):
		return fmt.Errorf("%s: %w", code, errs.ErrNotFound)
	case strings.HasPrefix(code, "INVALID_PASSWORD"),
		strings.HasPrefix(code, "INVALID_LOGIN_CREDENTIALS"),
		strings.HasPrefix(code, "USER_DISABLED"):
		return fmt.Errorf("%s: %w", code, errs.ErrUnauthenticated)
	case strings.HasPrefix(code, "EMAIL_EXISTS"):
		return fmt.Errorf("%s: %w", code, errs.ErrAlreadyExists)
	case strings.HasPrefix(code, "WEAK_PASSWORD"):
		return fmt.Errorf("%s: %w", code, errs.ErrWeakSecret)
	case strings.HasPrefix(code, "INVALID_EMAIL"), strings.HasPrefix(code, "MISSING_PASSWORD"):
		return fmt.Errorf("%s: %w", code, errs.ErrInvalidArgument)
	case status >= 500:
		return fmt.Errorf("identity provider error %d: %w", status, errs.ErrNetwork)
	default:
		if code == "" {
			code = fmt.Sprintf("HTTP %d", status)
		}
		return fmt.Errorf("%s: %w", code, errs.ErrUpstream)
	}
}

// sessionFrom builds a session from a credential response. Token expiry
// is taken from the ID token claims when decodable, otherwise from the
// advertised expiresIn.
func (g *Gateway) sessionFrom(resp *credentialResponse) *models.Session {
	now := time.Now()
	expires := now.Add(time.Hour)
	if secs, err := strconv.Atoi(resp.ExpiresIn); err == nil {
		expires = now.Add(time.Duration(secs) * time.Second)
	}

	// The token is issued by the provider over TLS; claims are decoded
	// without signature verification, matching client SDK behavior.
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(resp.IDToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			expires = exp.Time
		}
	}

	return &models.Session{
		UID:          resp.LocalID,
		Email:        resp.Email,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expires,
		SignedInAt:   now,
	}
}
