// models.go
// Defines the core data structures shared by the SecureLC field agent.
// Field names map 1:1 onto the Firestore documents the fleet already uses.

package models

import (
	"time"
)

// RequestStatus is the lifecycle state of a line clear request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusDenied    RequestStatus = "denied"
	StatusCompleted RequestStatus = "completed"
)

// CanTransition reports whether a status change is allowed.
// pending -> approved|denied, approved -> completed; denied and
// completed are terminal.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusApproved || to == StatusDenied
	case StatusApproved:
		return to == StatusCompleted
	default:
		return false
	}
}

// FaultType categorizes the reported fault on a line clear request.
type FaultType string

const (
	FaultLineBreak       FaultType = "Line Break"
	FaultTransformer     FaultType = "Transformer Fault"
	FaultInsulator       FaultType = "Insulator Damage"
	FaultVegetation      FaultType = "Vegetation Contact"
	FaultScheduledOutage FaultType = "Scheduled Outage"
	FaultOther           FaultType = "Other"
)

// Valid reports whether the fault type is one of the fixed labels.
func (f FaultType) Valid() bool {
	switch f {
	case FaultLineBreak, FaultTransformer, FaultInsulator,
		FaultVegetation, FaultScheduledOutage, FaultOther:
		return true
	}
	return false
}

// GeoPoint is a last-known-location snapshot embedded on a request.
type GeoPoint struct {
	Latitude  float64   `firestore:"latitude" json:"latitude"`
	Longitude float64   `firestore:"longitude" json:"longitude"`
	Accuracy  float64   `firestore:"accuracy" json:"accuracy"`
	Timestamp time.Time `firestore:"timestamp,serverTimestamp" json:"timestamp"`
}

// Request is a line clear work order submitted by a field user.
// The document ID is assigned by Firestore on creation.
type Request struct {
	ID                string        `firestore:"-" json:"id"`
	UserID            string        `firestore:"userId" json:"user_id"`
	Substation        string        `firestore:"substation" json:"substation"`
	FaultType         FaultType     `firestore:"faultType" json:"fault_type"`
	Notes             string        `firestore:"notes,omitempty" json:"notes,omitempty"`
	AudioURL          string        `firestore:"audioURL,omitempty" json:"audio_url,omitempty"`
	Status            RequestStatus `firestore:"status" json:"status"`
	CreatedAt         time.Time     `firestore:"createdAt,serverTimestamp" json:"created_at"`
	CompletedAt       *time.Time    `firestore:"completedAt,omitempty" json:"completed_at,omitempty"`
	LastKnownLocation *GeoPoint     `firestore:"lastKnownLocation,omitempty" json:"last_known_location,omitempty"`
}

// RequestInput carries the user-supplied fields of a new request.
type RequestInput struct {
	Substation string    `json:"substation"`
	FaultType  FaultType `json:"fault_type"`
	Notes      string    `json:"notes,omitempty"`
	AudioURL   string    `json:"audio_url,omitempty"`
}

// LocationSample is one GPS fix written to the append-only locations
// stream. Samples are immutable once written.
type LocationSample struct {
	ID              string    `firestore:"-" json:"id"`
	UserID          string    `firestore:"userId" json:"user_id"`
	UserEmail       string    `firestore:"userEmail,omitempty" json:"user_email,omitempty"`
	Latitude        float64   `firestore:"latitude" json:"latitude"`
	Longitude       float64   `firestore:"longitude" json:"longitude"`
	Accuracy        float64   `firestore:"accuracy" json:"accuracy"`
	Altitude        float64   `firestore:"altitude" json:"altitude"`
	Heading         float64   `firestore:"heading" json:"heading"`
	Speed           float64   `firestore:"speed" json:"speed"`
	Timestamp       time.Time `firestore:"timestamp,serverTimestamp" json:"timestamp"`
	DeviceTimestamp time.Time `firestore:"deviceTimestamp" json:"device_timestamp"`
	RequestID       string    `firestore:"requestId,omitempty" json:"request_id,omitempty"`
}

// PushToken is a device's notification address, one per user,
// overwritten on refresh.
type PushToken struct {
	UserID          string    `firestore:"-" json:"user_id"`
	Token           string    `firestore:"pushToken" json:"token"`
	Email           string    `firestore:"email,omitempty" json:"email,omitempty"`
	LastTokenUpdate time.Time `firestore:"lastTokenUpdate" json:"last_token_update"`
}

// NotificationEvent is a delivered status-change notification, written
// to the notifications collection by the approval workflow.
type NotificationEvent struct {
	ID        string    `firestore:"-" json:"id"`
	UserID    string    `firestore:"userId" json:"user_id"`
	RequestID string    `firestore:"requestId" json:"request_id"`
	Title     string    `firestore:"title" json:"title"`
	Body      string    `firestore:"body" json:"body"`
	SentAt    time.Time `firestore:"sentAt" json:"sent_at"`
}

// Session is the transient, process-local authenticated identity.
// It is owned by the credential gateway; everything else reads it.
type Session struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	IDToken      string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	SignedInAt   time.Time `json:"signed_in_at"`
}
