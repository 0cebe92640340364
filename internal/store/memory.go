package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/solace/backend/internal/model/chat"
	"github.com/zhouzirui/solace/backend/internal/model/wellness"
)

// MemoryStore keeps everything in process memory. It is not durable and only
// suitable for tests and local experiments.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]chat.Session
	messages   map[string][]chat.Message
	moods      []wellness.Mood
	activities []wellness.Activity
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateSession(_ context.Context, session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return persistenceError("create session", fmt.Errorf("duplicate session id %s", session.ID))
	}
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrNotFound
	}
	return session, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, ownerID string) ([]chat.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]chat.Summary, 0)
	for id, session := range s.sessions {
		if session.OwnerID != ownerID {
			continue
		}
		summary := chat.Summary{Session: session}
		if msgs := s.messages[id]; len(msgs) > 0 {
			summary.MessageCount = len(msgs)
			last := msgs[len(msgs)-1].Timestamp
			summary.LastMessageAt = &last
		}
		summaries = append(summaries, summary)
	}

	slices.SortFunc(summaries, func(a, b chat.Summary) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return summaries, nil
}

func (s *MemoryStore) UpdateSessionStatus(_ context.Context, sessionID string, status chat.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.Status = status
	s.sessions[sessionID] = session
	return nil
}

func (s *MemoryStore) AppendMessages(_ context.Context, sessionID string, messages []chat.Message) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if session.Status != chat.StatusActive {
		return nil, ErrSessionClosed
	}
	existing := s.messages[sessionID]

	var last time.Time
	if len(existing) > 0 {
		last = existing[len(existing)-1].Timestamp
	}

	stored := make([]chat.Message, len(messages))
	for i, msg := range messages {
		stored[i] = prepareMessage(sessionID, msg, last)
		last = stored[i].Timestamp
	}

	// Appending onto a fresh slice keeps previously returned transcripts untouched.
	next := make([]chat.Message, 0, len(existing)+len(stored))
	next = append(next, existing...)
	next = append(next, stored...)
	s.messages[sessionID] = next
	return slices.Clone(stored), nil
}

func (s *MemoryStore) Messages(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *MemoryStore) CreateMood(_ context.Context, mood wellness.Mood) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moods = append(s.moods, mood)
	return nil
}

func (s *MemoryStore) CreateActivity(_ context.Context, activity wellness.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, activity)
	return nil
}

// Moods returns a copy of the stored mood entries.
func (s *MemoryStore) Moods() []wellness.Mood {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.moods)
}

// Activities returns a copy of the stored activities.
func (s *MemoryStore) Activities() []wellness.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.activities)
}

func (s *MemoryStore) Close() error {
	return nil
}

// prepareMessage fills identifiers and clamps the timestamp so it never precedes last.
func prepareMessage(sessionID string, msg chat.Message, last time.Time) chat.Message {
	msg.SessionID = sessionID
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Timestamp.Before(last) {
		msg.Timestamp = last
	}
	return msg
}
