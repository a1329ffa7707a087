// Package handlers implements the agent's loopback control API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"securelc/errs"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFromError maps taxonomy sentinels onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument), errors.Is(err, errs.ErrWeakSecret):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrNetwork), errors.Is(err, errs.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
