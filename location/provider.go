// Package location owns GPS tracking for the active line clear job:
// a provider abstraction over the platform's positioning source, and a
// tracker that persists ticks while a job is being worked.
package location

import (
	"context"
	"time"
)

// Fix is one position report from the platform.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters
	Altitude  float64
	Heading   float64
	Speed     float64
	Timestamp time.Time // device-local
}

// Permissions reports what the platform granted. Foreground is
// mandatory for tracking; absent background only degrades sampling.
type Permissions struct {
	Foreground bool
	Background bool
}

// WatchOptions configures periodic sampling: a fix is delivered every
// Interval, or after MinDistance meters of movement, whichever first.
type WatchOptions struct {
	Interval    time.Duration
	MinDistance float64
}

// Provider is the platform positioning source.
type Provider interface {
	// RequestPermissions prompts for location access.
	RequestPermissions(ctx context.Context) (Permissions, error)
	// Current acquires a one-shot fix.
	Current(ctx context.Context) (Fix, error)
	// Watch registers periodic sampling and streams fixes until ctx is
	// canceled. The returned channel is closed when sampling ends.
	Watch(ctx context.Context, opts WatchOptions) (<-chan Fix, error)
}
