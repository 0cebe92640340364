// Package session owns session identity, ownership and lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/solace/backend/internal/events"
	"github.com/zhouzirui/solace/backend/internal/model/chat"
	"github.com/zhouzirui/solace/backend/internal/policy"
	"github.com/zhouzirui/solace/backend/internal/store"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrForbidden         = errors.New("session belongs to another user")
	ErrInactive          = errors.New("session is not active")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrOwnerRequired     = errors.New("session owner is required")
)

// Authorizer decides whether a caller may act on a session.
type Authorizer interface {
	Evaluate(ctx context.Context, input policy.Input) (policy.Decision, error)
}

// Registry creates, resolves and authorizes sessions.
type Registry struct {
	store      store.Store
	authorizer Authorizer
	events     events.Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistry wires the registry. A nil publisher discards events.
func NewRegistry(st store.Store, authorizer Authorizer, publisher events.Publisher, logger *slog.Logger) *Registry {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:      st,
		authorizer: authorizer,
		events:     publisher,
		logger:     logger.With("component", "sessions"),
		now:        time.Now,
	}
}

// CreateSession starts an active session with an empty transcript.
func (r *Registry) CreateSession(ctx context.Context, ownerID string) (chat.Session, error) {
	if ownerID == "" {
		return chat.Session{}, ErrOwnerRequired
	}

	sess := chat.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Status:    chat.StatusActive,
		StartTime: r.now().UTC(),
	}
	if err := r.store.CreateSession(ctx, sess); err != nil {
		return chat.Session{}, err
	}

	r.logger.Info("session created", "sessionId", sess.ID, "userId", ownerID)
	r.events.Publish(events.SessionCreated, map[string]any{
		"sessionId": sess.ID,
		"userId":    ownerID,
		"startTime": sess.StartTime,
	})
	return sess, nil
}

// GetSession looks a session up without any ownership check.
func (r *Registry) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return chat.Session{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return chat.Session{}, err
	}
	return sess, nil
}

// ListSessions returns the owner's sessions, most recent first.
func (r *Registry) ListSessions(ctx context.Context, ownerID string) ([]chat.Summary, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	return r.store.ListSessions(ctx, ownerID)
}

// Authorize evaluates the access policy for one call. Decisions are never cached.
func (r *Registry) Authorize(ctx context.Context, sess chat.Session, callerID string, action policy.Action) error {
	decision, err := r.authorizer.Evaluate(ctx, policy.Input{
		CallerID: callerID,
		Action:   action,
		Session: policy.SessionInput{
			ID:      sess.ID,
			OwnerID: sess.OwnerID,
			Status:  string(sess.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to authorize session access: %w", err)
	}
	if decision.Allow {
		return nil
	}

	if decision.Reason == policy.ReasonInactive {
		return fmt.Errorf("%w: %s is %s", ErrInactive, sess.ID, sess.Status)
	}
	r.logger.Warn("session access denied", "sessionId", sess.ID, "callerId", callerID, "action", action)
	return ErrForbidden
}

// Resolve fetches a session and authorizes callerID for action in one step.
func (r *Registry) Resolve(ctx context.Context, sessionID, callerID string, action policy.Action) (chat.Session, error) {
	sess, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	if err := r.Authorize(ctx, sess, callerID, action); err != nil {
		return chat.Session{}, err
	}
	return sess, nil
}

// UpdateStatus moves an owned session along its lifecycle.
func (r *Registry) UpdateStatus(ctx context.Context, sessionID, callerID string, status chat.Status) (chat.Session, error) {
	if !status.Valid() {
		return chat.Session{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	sess, err := r.Resolve(ctx, sessionID, callerID, policy.ActionManage)
	if err != nil {
		return chat.Session{}, err
	}
	if !sess.Status.CanTransition(status) {
		return chat.Session{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, status)
	}

	if err := r.store.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return chat.Session{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return chat.Session{}, err
	}

	r.logger.Info("session status changed", "sessionId", sessionID, "from", sess.Status, "to", status)
	sess.Status = status
	return sess, nil
}
