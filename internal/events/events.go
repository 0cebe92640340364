// Package events delivers best-effort notifications to the external workflow engine.
package events

import "context"

// Event names understood by the workflow engine.
const (
	SessionCreated    = "therapy/session.created"
	SessionMessage    = "therapy/session.message"
	MoodUpdated       = "mood/updated"
	ActivityCompleted = "activity/completed"
)

// Event is one notification.
type Event struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
	Ts   int64          `json:"ts,omitempty"`
}

// Sender delivers a single event synchronously.
type Sender interface {
	Send(ctx context.Context, event Event) error
}

// Publisher hands an event off without waiting for delivery. It reports whether
// the event was accepted; a false return is never an error for the caller.
type Publisher interface {
	Publish(name string, data map[string]any) bool
}

// NopSender drops every event.
type NopSender struct{}

func (NopSender) Send(context.Context, Event) error { return nil }

type discard struct{}

func (discard) Publish(string, map[string]any) bool { return false }

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}
