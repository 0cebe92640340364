package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhouzirui/solace/backend/internal/model/chat"
	"github.com/zhouzirui/solace/backend/internal/model/wellness"
)

// SQLiteStore implements Store on top of SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at dsn. Use ":memory:" for tests.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	inMemory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")

	db, err := sql.Open("sqlite3", withConnParams(dsn, inMemory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// withConnParams adds the connection parameters every pooled connection needs,
// keeping any the caller already set. Write transactions on file databases take
// the lock up front so concurrent appends queue instead of failing with
// SQLITE_BUSY on upgrade.
func withConnParams(dsn string, inMemory bool) string {
	params := []string{"_foreign_keys=on"}
	if !inMemory {
		params = append(params, "_busy_timeout=5000", "_journal_mode=WAL", "_txlock=immediate")
	}

	var missing []string
	for _, param := range params {
		key, _, _ := strings.Cut(param, "=")
		if !strings.Contains(dsn, key+"=") {
			missing = append(missing, param)
		}
	}
	if len(missing) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, start_time)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			ts INTEGER NOT NULL,
			metadata TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id),
			UNIQUE (session_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS moods (
			mood_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			note TEXT,
			context TEXT,
			activities TEXT,
			ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_moods_user ON moods(user_id, ts)`,
		`CREATE TABLE IF NOT EXISTS activities (
			activity_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			duration INTEGER,
			difficulty INTEGER,
			feedback TEXT,
			ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session chat.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, owner_id, status, start_time) VALUES (?, ?, ?, ?)`,
		session.ID, session.OwnerID, string(session.Status), session.StartTime.UnixNano())
	if err != nil {
		return persistenceError("create session", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var (
		session   chat.Session
		status    string
		startTime int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, owner_id, status, start_time FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.ID, &session.OwnerID, &status, &startTime)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrNotFound
	}
	if err != nil {
		return chat.Session{}, persistenceError("get session", err)
	}
	session.Status = chat.Status(status)
	session.StartTime = fromUnixNano(startTime)
	return session, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, ownerID string) ([]chat.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.owner_id, s.status, s.start_time, COUNT(m.message_id), MAX(m.ts)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.session_id
		WHERE s.owner_id = ?
		GROUP BY s.session_id
		ORDER BY s.start_time DESC, s.session_id DESC`, ownerID)
	if err != nil {
		return nil, persistenceError("list sessions", err)
	}
	defer rows.Close()

	summaries := make([]chat.Summary, 0)
	for rows.Next() {
		var (
			summary   chat.Summary
			status    string
			startTime int64
			lastTs    sql.NullInt64
		)
		if err := rows.Scan(&summary.ID, &summary.OwnerID, &status, &startTime, &summary.MessageCount, &lastTs); err != nil {
			return nil, persistenceError("scan session", err)
		}
		summary.Status = chat.Status(status)
		summary.StartTime = fromUnixNano(startTime)
		if lastTs.Valid {
			last := fromUnixNano(lastTs.Int64)
			summary.LastMessageAt = &last
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list sessions", err)
	}
	return summaries, nil
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status chat.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE session_id = ?`, string(status), sessionID)
	if err != nil {
		return persistenceError("update session status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistenceError("update session status", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendMessages(ctx context.Context, sessionID string, messages []chat.Message) (stored []chat.Message, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistenceError("begin append", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE session_id = ?`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("lookup session", err)
	}
	if chat.Status(status) != chat.StatusActive {
		return nil, ErrSessionClosed
	}

	var (
		lastSeq int64
		lastTs  int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0), COALESCE(MAX(ts), 0) FROM messages WHERE session_id = ?`,
		sessionID).Scan(&lastSeq, &lastTs)
	if err != nil {
		return nil, persistenceError("read transcript tail", err)
	}

	last := time.Time{}
	if lastTs > 0 {
		last = fromUnixNano(lastTs)
	}

	stored = make([]chat.Message, len(messages))
	for i, msg := range messages {
		msg = prepareMessage(sessionID, msg, last)
		last = msg.Timestamp
		lastSeq++

		var metadata sql.NullString
		if msg.Metadata != nil {
			raw, marshalErr := json.Marshal(msg.Metadata)
			if marshalErr != nil {
				err = persistenceError("encode metadata", marshalErr)
				return nil, err
			}
			metadata = sql.NullString{String: string(raw), Valid: true}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (message_id, session_id, seq, role, content, ts, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, sessionID, lastSeq, string(msg.Role), msg.Content, msg.Timestamp.UnixNano(), metadata)
		if err != nil {
			return nil, persistenceError("insert message", err)
		}
		stored[i] = msg
	}

	if err = tx.Commit(); err != nil {
		return nil, persistenceError("commit append", err)
	}
	return stored, nil
}

func (s *SQLiteStore) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, role, content, ts, metadata FROM messages WHERE session_id = ? ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, persistenceError("read transcript", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var (
			msg      chat.Message
			role     string
			ts       int64
			metadata sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &ts, &metadata); err != nil {
			return nil, persistenceError("scan message", err)
		}
		msg.Role = chat.Role(role)
		msg.Timestamp = fromUnixNano(ts)
		if metadata.Valid && metadata.String != "" {
			msg.Metadata = &chat.Metadata{}
			if err := json.Unmarshal([]byte(metadata.String), msg.Metadata); err != nil {
				return nil, persistenceError("decode metadata", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("read transcript", err)
	}
	return messages, nil
}

func (s *SQLiteStore) CreateMood(ctx context.Context, mood wellness.Mood) error {
	activities, err := json.Marshal(mood.Activities)
	if err != nil {
		return persistenceError("encode mood activities", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO moods (mood_id, user_id, score, note, context, activities, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mood.ID, mood.UserID, mood.Score, mood.Note, mood.Context, string(activities), mood.Timestamp.UnixNano())
	if err != nil {
		return persistenceError("create mood", err)
	}
	return nil
}

func (s *SQLiteStore) CreateActivity(ctx context.Context, activity wellness.Activity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (activity_id, user_id, type, name, description, duration, difficulty, feedback, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activity.ID, activity.UserID, activity.Type, activity.Name, activity.Description,
		activity.Duration, activity.Difficulty, activity.Feedback, activity.Timestamp.UnixNano())
	if err != nil {
		return persistenceError("create activity", err)
	}
	return nil
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
