package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"securelc/models"
)

// CredentialGateway is the auth surface exposed over the control API.
type CredentialGateway interface {
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context) error
	ResetSecret(ctx context.Context, email string) error
	Current() *models.Session
}

type SessionHandler struct {
	gateway CredentialGateway
	log     *zap.SugaredLogger
}

func NewSessionHandler(gateway CredentialGateway, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{gateway: gateway, log: logger}
}

type credentialBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn handles POST /api/session/signin
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body credentialBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.gateway.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		h.log.Warnf("Sign-in failed for %s: %v", body.Email, err)
		writeError(w, "Sign-in failed", statusFromError(err))
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// SignUp handles POST /api/session/signup
func (h *SessionHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body credentialBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.gateway.SignUp(r.Context(), body.Email, body.Password)
	if err != nil {
		h.log.Warnf("Sign-up failed for %s: %v", body.Email, err)
		writeError(w, "Sign-up failed", statusFromError(err))
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// SignOut handles POST /api/session/signout
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.gateway.SignOut(r.Context()); err != nil {
		writeError(w, "Sign-out failed", statusFromError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"signed_out": true})
}

// Reset handles POST /api/session/reset — password reset email.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body credentialBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.gateway.ResetSecret(r.Context(), body.Email); err != nil {
		writeError(w, "Password reset failed", statusFromError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

// Current handles GET /api/session
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session := h.gateway.Current()
	if session == nil {
		writeError(w, "Not signed in", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
