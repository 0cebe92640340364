package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/solace/backend/internal/model/chat"
	"github.com/zhouzirui/solace/backend/internal/model/wellness"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// forEachStore runs the same contract against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newTestSQLiteStore(t))
	})
}

func newSession(id, owner string, start time.Time) chat.Session {
	return chat.Session{ID: id, OwnerID: owner, Status: chat.StatusActive, StartTime: start}
}

func TestStoreSessionRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, s.CreateSession(ctx, newSession("s1", "u1", start)))

		got, err := s.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.OwnerID)
		assert.Equal(t, chat.StatusActive, got.Status)
		assert.True(t, got.StartTime.Equal(start))

		messages, err := s.Messages(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, messages)
		assert.NotNil(t, messages)
	})
}

func TestStoreGetSessionNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.GetSession(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Messages(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.AppendMessages(context.Background(), "missing", []chat.Message{{Role: chat.RoleUser, Content: "hi"}})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreDuplicateSessionIsPersistenceError(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, newSession("s1", "u1", time.Now())))
		err := s.CreateSession(ctx, newSession("s1", "u2", time.Now()))
		assert.ErrorIs(t, err, ErrPersistence)
	})
}

func TestStoreAppendKeepsOrderAndMetadata(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, newSession("s1", "u1", time.Now())))

		analysis := chat.Analysis{
			EmotionalState:      "anxious",
			Themes:              []string{"work"},
			RiskLevel:           2,
			RecommendedApproach: "grounding",
			ProgressIndicators:  []string{"naming feelings"},
		}
		now := time.Now().UTC()
		stored, err := s.AppendMessages(ctx, "s1", []chat.Message{
			{Role: chat.RoleUser, Content: "I feel anxious today", Timestamp: now},
			{Role: chat.RoleAssistant, Content: "Let's breathe together.", Timestamp: now, Metadata: chat.NewAssistantMetadata(analysis)},
		})
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.NotEmpty(t, stored[0].ID)
		assert.Equal(t, "s1", stored[1].SessionID)

		messages, err := s.Messages(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, chat.RoleUser, messages[0].Role)
		assert.Equal(t, "I feel anxious today", messages[0].Content)
		assert.Nil(t, messages[0].Metadata)
		assert.Equal(t, chat.RoleAssistant, messages[1].Role)
		require.NotNil(t, messages[1].Metadata)
		assert.Equal(t, 2.0, messages[1].Metadata.Progress.RiskLevel)
		assert.Equal(t, []string{"work"}, messages[1].Metadata.Analysis.Themes)
	})
}

func TestStoreAppendClampsTimestamps(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, newSession("s1", "u1", time.Now())))

		later := time.Now().UTC().Add(time.Hour)
		_, err := s.AppendMessages(ctx, "s1", []chat.Message{{Role: chat.RoleUser, Content: "first", Timestamp: later}})
		require.NoError(t, err)

		earlier := later.Add(-30 * time.Minute)
		stored, err := s.AppendMessages(ctx, "s1", []chat.Message{{Role: chat.RoleUser, Content: "second", Timestamp: earlier}})
		require.NoError(t, err)
		assert.False(t, stored[0].Timestamp.Before(later))

		messages, err := s.Messages(ctx, "s1")
		require.NoError(t, err)
		for i := 1; i < len(messages); i++ {
			assert.False(t, messages[i].Timestamp.Before(messages[i-1].Timestamp), "timestamps must not decrease")
		}
	})
}

func TestStoreConcurrentAppendsDoNotDropMessages(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, newSession("s1", "u1", time.Now())))

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.AppendMessages(ctx, "s1", []chat.Message{
					{Role: chat.RoleUser, Content: fmt.Sprintf("q%d", i)},
					{Role: chat.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		messages, err := s.Messages(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, messages, writers*2)
		for i := 0; i < len(messages); i += 2 {
			assert.Equal(t, chat.RoleUser, messages[i].Role)
			assert.Equal(t, chat.RoleAssistant, messages[i+1].Role)
			assert.Equal(t, "a"+messages[i].Content[1:], messages[i+1].Content, "exchange must stay adjacent")
		}
	})
}

func TestStoreListSessionsNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC()
		require.NoError(t, s.CreateSession(ctx, newSession("old", "u1", base.Add(-time.Hour))))
		require.NoError(t, s.CreateSession(ctx, newSession("new", "u1", base)))
		require.NoError(t, s.CreateSession(ctx, newSession("other", "u2", base.Add(time.Hour))))
		_, err := s.AppendMessages(ctx, "old", []chat.Message{{Role: chat.RoleUser, Content: "hello"}})
		require.NoError(t, err)

		summaries, err := s.ListSessions(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, "new", summaries[0].ID)
		assert.Equal(t, 0, summaries[0].MessageCount)
		assert.Nil(t, summaries[0].LastMessageAt)
		assert.Equal(t, "old", summaries[1].ID)
		assert.Equal(t, 1, summaries[1].MessageCount)
		assert.NotNil(t, summaries[1].LastMessageAt)

		none, err := s.ListSessions(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestStoreUpdateSessionStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, newSession("s1", "u1", time.Now())))
		require.NoError(t, s.UpdateSessionStatus(ctx, "s1", chat.StatusArchived))

		got, err := s.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, chat.StatusArchived, got.Status)

		err = s.UpdateSessionStatus(ctx, "missing", chat.StatusArchived)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestStoreWellnessEntries(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateMood(ctx, wellness.Mood{
			ID: "m1", UserID: "u1", Score: 70, Activities: []string{"walk"}, Timestamp: time.Now(),
		}))
		require.NoError(t, s.CreateActivity(ctx, wellness.Activity{
			ID: "a1", UserID: "u1", Type: "exercise", Name: "Evening walk", Duration: 30, Timestamp: time.Now(),
		}))
	})
}

func TestSQLiteStoreClosedDatabaseIsPersistenceError(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.CreateSession(context.Background(), newSession("s1", "u1", time.Now()))
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestSQLiteStoreFileDatabaseSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/therapy.db"
	ctx := context.Background()

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.CreateSession(ctx, newSession("s1", "u1", time.Now())))
	_, err = first.AppendMessages(ctx, "s1", []chat.Message{{Role: chat.RoleUser, Content: "still here"}})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	messages, err := second.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "still here", messages[0].Content)
}

func TestStoreAppendRejectsClosedSession(t *testing.T) {
	for _, status := range []chat.Status{chat.StatusCompleted, chat.StatusArchived} {
		t.Run(string(status), func(t *testing.T) {
			forEachStore(t, func(t *testing.T, s Store) {
				ctx := context.Background()
				require.NoError(t, s.CreateSession(ctx, newSession("s1", "u1", time.Now())))
				require.NoError(t, s.UpdateSessionStatus(ctx, "s1", status))

				_, err := s.AppendMessages(ctx, "s1", []chat.Message{
					{Role: chat.RoleUser, Content: "anyone there?"},
					{Role: chat.RoleAssistant, Content: "yes"},
				})
				assert.ErrorIs(t, err, ErrSessionClosed)

				messages, err := s.Messages(ctx, "s1")
				require.NoError(t, err)
				assert.Empty(t, messages)
			})
		})
	}
}

func TestSQLiteStoreAppendSeesStatusFromOtherInstance(t *testing.T) {
	path := t.TempDir() + "/shared.db"
	ctx := context.Background()

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })
	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	require.NoError(t, first.CreateSession(ctx, newSession("s1", "u1", time.Now())))
	_, err = first.AppendMessages(ctx, "s1", []chat.Message{{Role: chat.RoleUser, Content: "before"}})
	require.NoError(t, err)

	require.NoError(t, second.UpdateSessionStatus(ctx, "s1", chat.StatusArchived))

	_, err = first.AppendMessages(ctx, "s1", []chat.Message{{Role: chat.RoleUser, Content: "after"}})
	assert.ErrorIs(t, err, ErrSessionClosed)

	messages, err := second.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "before", messages[0].Content)
}

func TestSQLiteStoreEnforcesForeignKeysOnEveryConnection(t *testing.T) {
	s, err := NewSQLiteStore(t.TempDir() + "/fk.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	// Holding both connections forces the pool to open two distinct ones.
	a, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer a.Close()
	b, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer b.Close()

	for i, conn := range []*sql.Conn{a, b} {
		var enabled int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
		assert.Equal(t, 1, enabled, "connection %d", i)
	}
}

func TestWithConnParams(t *testing.T) {
	cases := []struct {
		name     string
		dsn      string
		inMemory bool
		want     string
	}{
		{"memory", ":memory:", true, ":memory:?_foreign_keys=on"},
		{"file", "solace.db", false, "solace.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"},
		{"keeps caller params", "solace.db?_busy_timeout=100", false, "solace.db?_busy_timeout=100&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate"},
		{"already complete", "x.db?_foreign_keys=on&_busy_timeout=1&_journal_mode=DELETE&_txlock=deferred", false, "x.db?_foreign_keys=on&_busy_timeout=1&_journal_mode=DELETE&_txlock=deferred"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := withConnParams(tc.dsn, tc.inMemory); got != tc.want {
				t.Fatalf("withConnParams(%q) = %q, want %q", tc.dsn, got, tc.want)
			}
		})
	}
}
