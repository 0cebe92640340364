package chat

import "time"

// Status tracks where a session is in its lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusArchived:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a session may move from s to next.
// Archived is terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusCompleted || next == StatusArchived
	case StatusCompleted:
		return next == StatusArchived
	default:
		return false
	}
}

// Session captures an owned therapy conversation.
type Session struct {
	ID        string    `json:"sessionId"`
	OwnerID   string    `json:"userId"`
	Status    Status    `json:"status"`
	StartTime time.Time `json:"startTime"`
}

// Summary is the list view of a session.
type Summary struct {
	Session
	MessageCount  int        `json:"messageCount"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}
