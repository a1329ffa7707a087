// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Failure taxonomy shared by the gateway, stores, tracker and uploader.
var (
	// ErrUnauthenticated indicates no signed-in session, or rejected credentials.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidArgument indicates a malformed or missing caller input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied indicates a platform permission was refused.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyExists indicates a uniqueness violation (e.g. email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrWeakSecret indicates the identity provider rejected the password.
	ErrWeakSecret = errors.New("weak password")

	// ErrNetwork indicates a transport-level failure reaching a service.
	ErrNetwork = errors.New("network error")

	// ErrUnsupported indicates the capability is absent in this environment.
	ErrUnsupported = errors.New("unsupported platform")

	// ErrUpstream indicates an unclassified failure reported by a service.
	ErrUpstream = errors.New("upstream error")
)
