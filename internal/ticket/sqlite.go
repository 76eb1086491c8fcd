package ticket

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taborda-io/taborda/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
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
		CREATE TABLE IF NOT EXISTS support_tickets (
			ticket_number       TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			user_name           TEXT NOT NULL,
			user_sector         TEXT NOT NULL,
			cost_center         TEXT NOT NULL,
			phone               TEXT NOT NULL,
			email               TEXT NOT NULL,
			equipment_patrimony TEXT NOT NULL,
			problem_type        TEXT NOT NULL,
			problem_description TEXT NOT NULL,
			status              TEXT NOT NULL,
			created_at          TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_user ON support_tickets(user_id);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON support_tickets(status);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, t *protocol.Ticket) (string, error) {
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now.UTC()
	}

	// The primary key catches the residual suffix-collision risk; one
	// retry with a fresh number is enough since the sequence is atomic.
	for attempt := 0; attempt < 2; attempt++ {
		number := t.Number
		if number == "" {
			number = NextNumber(now)
		}

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO support_tickets
				(ticket_number, user_id, user_name, user_sector, cost_center,
				 phone, email, equipment_patrimony, problem_type,
				 problem_description, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, number, t.UserID, t.Name, t.Sector, t.CostCenter,
			t.Phone, t.Email, t.Patrimony, t.ProblemType,
			t.ProblemDescription, string(t.Status), t.CreatedAt.Format(time.RFC3339))
		if err != nil {
			if t.Number == "" && attempt == 0 && isUniqueViolation(err) {
				continue
			}
			return "", fmt.Errorf("ticket store: create: %w", err)
		}
		t.Number = number
		return number, nil
	}
	return "", fmt.Errorf("ticket store: create: number collision persisted")
}

func (s *SQLiteStore) Get(ctx context.Context, number string) (*protocol.Ticket, error) {
	row := s.db.QueryRowContext(ctx, selectTickets+` WHERE ticket_number = ?`, number)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %q not found", number)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*protocol.Ticket, error) {
	query, args := buildFilter(selectTickets, filter)
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildFilter(`SELECT COUNT(*) FROM support_tickets`, filter)
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ticket store: count: %w", err)
	}
	return count, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ticket store: ping: %w", err)
	}
	return nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

const selectTickets = `SELECT ticket_number, user_id, user_name, user_sector,
	cost_center, phone, email, equipment_patrimony, problem_type,
	problem_description, status, created_at FROM support_tickets`

func buildFilter(base string, filter Filter) (string, []any) {
	query := base + " WHERE 1=1"
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if !filter.CreatedAfter.IsZero() {
		// created_at is stored as UTC RFC3339, so string comparison
		// matches chronological order.
		query += " AND created_at >= ?"
		args = append(args, filter.CreatedAfter.UTC().Format(time.RFC3339))
	}
	return query, args
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var status, createdAt string
	err := row.Scan(&t.Number, &t.UserID, &t.Name, &t.Sector, &t.CostCenter,
		&t.Phone, &t.Email, &t.Patrimony, &t.ProblemType,
		&t.ProblemDescription, &status, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Status = protocol.CompletionStatus(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
