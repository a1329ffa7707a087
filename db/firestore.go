// Package db wraps Firestore access for the SecureLC collections:
// requests, locations, users and notifications.
package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"securelc/errs"
	"securelc/models"
)

const (
	collRequests      = "requests"
	collLocations     = "locations"
	collUsers         = "users"
	collNotifications = "notifications"
)

// Store wraps the Firestore client
type Store struct {
	client *firestore.Client
	log    *zap.SugaredLogger
}

// NewStore initializes a Firestore client for the given project.
func NewStore(ctx context.Context, projectID, credentialsPath string, logger *zap.SugaredLogger) (*Store, error) {
	opt := option.WithCredentialsFile(credentialsPath)

	config := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, config, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %w", err)
	}

	logger.Infof("✅ Connected to Firestore project: %s", projectID)

	return &Store{client: client, log: logger}, nil
}

// Close closes the Firestore client
func (s *Store) Close() error {
	return s.client.Close()
}

// --- Request Operations ---

// CreateRequest creates a new line clear request with a store-assigned
// ID and server creation timestamp. The returned record carries a zero
// CreatedAt; the server value arrives with the next subscription
// snapshot.
func (s *Store) CreateRequest(ctx context.Context, ownerID string, in models.RequestInput) (*models.Request, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("missing owner: %w", errs.ErrInvalidArgument)
	}
	req := models.Request{
		UserID:     ownerID,
		Substation: in.Substation,
		FaultType:  in.FaultType,
		Notes:      in.Notes,
		AudioURL:   in.AudioURL,
		Status:     models.StatusPending,
	}

	ref := s.client.Collection(collRequests).NewDoc()
	if _, err := ref.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", mapFirestoreError(err))
	}
	req.ID = ref.ID
	return &req, nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID string) (*models.Request, error) {
	doc, err := s.client.Collection(collRequests).Doc(requestID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", mapFirestoreError(err))
	}

	var req models.Request
	if err := doc.DataTo(&req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	req.ID = doc.Ref.ID
	return &req, nil
}

// SubscribeRequests opens a live subscription over the owner's
// requests. onChange receives the full result set on every remote
// add/modify/remove, sorted newest first (the store-side ordering needs
// a composite index that is not guaranteed to exist, so sorting is done
// here). The returned stop function releases the listener; multiple
// subscriptions for different owners are independent.
func (s *Store) SubscribeRequests(ctx context.Context, ownerID string, onChange func([]models.Request)) (func(), error) {
	if ownerID == "" {
		return nil, fmt.Errorf("missing owner: %w", errs.ErrInvalidArgument)
	}

	ctx, cancel := context.WithCancel(ctx)
	snaps := s.client.Collection(collRequests).
		Where("userId", "==", ownerID).
		Snapshots(ctx)

	go func() {
		defer snaps.Stop()
		for {
			snap, err := snaps.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				s.log.Warnf("⚠️  Request subscription for %s ended: %v", ownerID, err)
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				s.log.Warnf("⚠️  Failed to read request snapshot: %v", err)
				continue
			}

			requests := make([]models.Request, 0, len(docs))
			for _, doc := range docs {
				var req models.Request
				if err := doc.DataTo(&req); err != nil {
					s.log.Warnf("Warning: failed to parse request %s: %v", doc.Ref.ID, err)
					continue
				}
				req.ID = doc.Ref.ID
				requests = append(requests, req)
			}
			SortRequestsNewestFirst(requests)
			onChange(requests)
		}
	}()

	return cancel, nil
}

// SortRequestsNewestFirst orders by creation timestamp descending with
// store-assigned ID ascending as the deterministic tie-break.
func SortRequestsNewestFirst(requests []models.Request) {
	sort.SliceStable(requests, func(i, j int) bool {
		if !requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].CreatedAt.After(requests[j].CreatedAt)
		}
		return requests[i].ID < requests[j].ID
	})
}

// UpdateRequest applies a partial update to a request. There is no
// optimistic rollback; a failed update leaves the subscription showing
// remote state.
func (s *Store) UpdateRequest(ctx context.Context, requestID string, updates map[string]interface{}) error {
	if requestID == "" {
		return fmt.Errorf("missing request id: %w", errs.ErrInvalidArgument)
	}
	fields := make([]firestore.Update, 0, len(updates))
	for path, value := range updates {
		fields = append(fields, firestore.Update{Path: path, Value: value})
	}
	if _, err := s.client.Collection(collRequests).Doc(requestID).Update(ctx, fields); err != nil {
		return fmt.Errorf("failed to update request %s: %w", requestID, mapFirestoreError(err))
	}
	return nil
}

// DeleteRequest irreversibly deletes a request.
func (s *Store) DeleteRequest(ctx context.Context, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("missing request id: %w", errs.ErrInvalidArgument)
	}
	if _, err := s.client.Collection(collRequests).Doc(requestID).Delete(ctx, firestore.Exists); err != nil {
		return fmt.Errorf("failed to delete request %s: %w", requestID, mapFirestoreError(err))
	}
	return nil
}

// --- Location Operations ---

// AppendLocation writes one GPS sample to the append-only locations
// stream and, when the sample is tagged with a request, overwrites that
// request's lastKnownLocation snapshot. Samples are never updated or
// deleted by this client.
func (s *Store) AppendLocation(ctx context.Context, sample *models.LocationSample) error {
	if sample.UserID == "" {
		return fmt.Errorf("missing owner: %w", errs.ErrInvalidArgument)
	}
	if _, err := s.client.Collection(collLocations).Doc(sample.ID).Create(ctx, sample); err != nil {
		return fmt.Errorf("failed to append location: %w", mapFirestoreError(err))
	}

	if sample.RequestID == "" {
		return nil
	}
	updates := []firestore.Update{{
		Path: "lastKnownLocation",
		Value: map[string]interface{}{
			"latitude":  sample.Latitude,
			"longitude": sample.Longitude,
			"accuracy":  sample.Accuracy,
			"timestamp": firestore.ServerTimestamp,
		},
	}}
	if _, err := s.client.Collection(collRequests).Doc(sample.RequestID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update last known location: %w", mapFirestoreError(err))
	}
	return nil
}

// --- Push Token Operations ---

// SavePushToken upserts the user's push token document. One token per
// user, overwritten on refresh.
func (s *Store) SavePushToken(ctx context.Context, token *models.PushToken) error {
	if token.UserID == "" || token.Token == "" {
		return fmt.Errorf("missing user or token: %w", errs.ErrInvalidArgument)
	}
	data := map[string]interface{}{
		"pushToken":       token.Token,
		"lastTokenUpdate": time.Now(),
	}
	if token.Email != "" {
		data["email"] = token.Email
	}
	if _, err := s.client.Collection(collUsers).Doc(token.UserID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to save push token: %w", mapFirestoreError(err))
	}
	return nil
}

// --- Notification Operations ---

// SubscribeNotifications opens a live subscription over the user's
// delivered notifications, newest first. The approval workflow writes
// these documents when a request's status changes.
func (s *Store) SubscribeNotifications(ctx context.Context, ownerID string, onEvent func([]models.NotificationEvent)) (func(), error) {
	if ownerID == "" {
		return nil, fmt.Errorf("missing owner: %w", errs.ErrInvalidArgument)
	}

	ctx, cancel := context.WithCancel(ctx)
	snaps := s.client.Collection(collNotifications).
		Where("userId", "==", ownerID).
		Snapshots(ctx)

	go func() {
		defer snaps.Stop()
		for {
			snap, err := snaps.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				s.log.Warnf("⚠️  Notification subscription for %s ended: %v", ownerID, err)
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				s.log.Warnf("⚠️  Failed to read notification snapshot: %v", err)
				continue
			}

			events := make([]models.NotificationEvent, 0, len(docs))
			for _, doc := range docs {
				var ev models.NotificationEvent
				if err := doc.DataTo(&ev); err != nil {
					s.log.Warnf("Warning: failed to parse notification %s: %v", doc.Ref.ID, err)
					continue
				}
				ev.ID = doc.Ref.ID
				events = append(events, ev)
			}
			sort.SliceStable(events, func(i, j int) bool {
				return events[i].SentAt.After(events[j].SentAt)
			})
			onEvent(events)
		}
	}()

	return cancel, nil
}

// mapFirestoreError converts gRPC status codes to taxonomy sentinels.
func mapFirestoreError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return errs.ErrNotFound
	case codes.PermissionDenied:
		return errs.ErrPermissionDenied
	case codes.AlreadyExists:
		return errs.ErrAlreadyExists
	case codes.Unavailable, codes.DeadlineExceeded:
		return errs.ErrNetwork
	default:
		return err
	}
}
