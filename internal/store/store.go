// Package store persists sessions, transcripts and wellness entries.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/solace/backend/internal/model/chat"
	"github.com/zhouzirui/solace/backend/internal/model/wellness"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrPersistence = errors.New("persistence failure")
	// ErrSessionClosed is returned when appending to a session that is no longer active.
	ErrSessionClosed = errors.New("session is closed for writes")
)

// Store is the durable source of truth shared by every service instance.
type Store interface {
	CreateSession(ctx context.Context, session chat.Session) error
	// GetSession returns ErrNotFound for unknown identifiers.
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	// ListSessions returns the owner's sessions, most recent first.
	ListSessions(ctx context.Context, ownerID string) ([]chat.Summary, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status chat.Status) error

	// AppendMessages adds messages to the end of a transcript as one unit: either all
	// of them become visible or none do. Timestamps are clamped so they never precede
	// the last stored message. The stored copies are returned. Sessions that are
	// not active reject the append with ErrSessionClosed.
	AppendMessages(ctx context.Context, sessionID string, messages []chat.Message) ([]chat.Message, error)
	// Messages returns the transcript in insertion order.
	Messages(ctx context.Context, sessionID string) ([]chat.Message, error)

	CreateMood(ctx context.Context, mood wellness.Mood) error
	CreateActivity(ctx context.Context, activity wellness.Activity) error

	Close() error
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
