package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/taborda-io/taborda/pkg/protocol"
)

// logTimeLayout is fixed-width so lexicographic ordering in SQL matches
// chronological ordering (RFC3339Nano trims trailing zeros and does not).
const logTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("conversation store: open: %w", err)
	}

	// WAL so the reaper's scan doesn't block turn writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("conversation store: wal: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS user_conversations (
			user_id    TEXT PRIMARY KEY,
			state      TEXT NOT NULL DEFAULT 'initial',
			fields     TEXT NOT NULL DEFAULT '{}',
			status     TEXT NOT NULL DEFAULT 'open',
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS message_logs (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			direction  TEXT NOT NULL,
			body       TEXT NOT NULL,
			state      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_logs_user ON message_logs(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_conversations_stale ON user_conversations(status, state, updated_at);
	`)
	if err != nil {
		return fmt.Errorf("conversation store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, userID string) (*protocol.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, state, fields, status, updated_at FROM user_conversations WHERE user_id = ?`, userID)

	conv, err := scanConversation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("conversation store: load: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, conv *protocol.Conversation) error {
	fields, err := json.Marshal(conv.Fields)
	if err != nil {
		return fmt.Errorf("conversation store: encode fields: %w", err)
	}
	now := s.now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_conversations (user_id, state, fields, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state=excluded.state, fields=excluded.fields,
			status=excluded.status, updated_at=excluded.updated_at
	`, conv.UserID, string(conv.State), string(fields), string(conv.Status), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("conversation store: upsert: %w", err)
	}
	conv.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context, userID string) error {
	// Guarded single-row update: only open records reset, and a concurrent
	// turn that already advanced the record simply overwrites this
	// afterwards (last writer wins).
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_conversations
		SET state = ?, fields = '{}', updated_at = ?
		WHERE user_id = ? AND status = ?
	`, string(protocol.StateInitial),
		s.now().UTC().Format(time.RFC3339), userID, string(protocol.StatusOpen))
	if err != nil {
		return fmt.Errorf("conversation store: reset: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Touch(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_conversations SET updated_at = ?
		WHERE user_id = ? AND status = ?
	`, s.now().UTC().Format(time.RFC3339), userID, string(protocol.StatusOpen))
	if err != nil {
		return fmt.Errorf("conversation store: touch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ScanStale(ctx context.Context, cutoff time.Time) ([]*protocol.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, state, fields, status, updated_at
		FROM user_conversations
		WHERE status = ? AND state <> ? AND updated_at < ?
	`, string(protocol.StatusOpen), string(protocol.StateInitial),
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("conversation store: scan stale: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows)
}

func (s *SQLiteStore) List(ctx context.Context) ([]*protocol.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, state, fields, status, updated_at
		FROM user_conversations ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("conversation store: list: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows)
}

func (s *SQLiteStore) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_conversations WHERE status = ? AND state <> ?
	`, string(protocol.StatusOpen), string(protocol.StateInitial)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("conversation store: count active: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, entry *protocol.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_logs (id, user_id, direction, body, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.UserID, string(entry.Direction), entry.Body,
		string(entry.State), entry.CreatedAt.Format(logTimeLayout))
	if err != nil {
		return fmt.Errorf("conversation store: append log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, userID string, limit int) ([]*protocol.LogEntry, error) {
	query := `SELECT id, user_id, direction, body, state, created_at
		FROM message_logs WHERE user_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation store: history: %w", err)
	}
	defer rows.Close()

	var entries []*protocol.LogEntry
	for rows.Next() {
		var e protocol.LogEntry
		var direction, state, createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &direction, &e.Body, &state, &createdAt); err != nil {
			return nil, fmt.Errorf("conversation store: history scan: %w", err)
		}
		e.Direction = protocol.Direction(direction)
		e.State = protocol.ParseState(state)
		e.CreatedAt, _ = time.Parse(logTimeLayout, createdAt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation store: history: %w", err)
	}
	// Oldest first for display
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("conversation store: ping: %w", err)
	}
	return nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanConversation(row scannable) (*protocol.Conversation, error) {
	var c protocol.Conversation
	var state, status, fieldsJSON, updatedAt string

	if err := row.Scan(&c.UserID, &state, &fieldsJSON, &status, &updatedAt); err != nil {
		return nil, err
	}

	// Malformed JSON in fields degrades to an empty map; the dialogue
	// engine restarts the flow rather than crashing the turn.
	if err := json.Unmarshal([]byte(fieldsJSON), &c.Fields); err != nil || c.Fields == nil {
		c.Fields = map[string]string{}
	}
	c.State = protocol.ParseState(state)
	c.Status = protocol.Status(status)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func collectConversations(rows *sql.Rows) ([]*protocol.Conversation, error) {
	var convs []*protocol.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation store: scan: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
