package conversation

import (
	"context"
	"time"

	"github.com/taborda-io/taborda/pkg/protocol"
)

// Store is the persistence interface for conversation records and the
// message audit log.
type Store interface {
	// Load retrieves the conversation for a user. It returns (nil, nil)
	// when no record exists.
	Load(ctx context.Context, userID string) (*protocol.Conversation, error)
	// Upsert creates or updates a conversation record and refreshes its
	// updated_at timestamp.
	Upsert(ctx context.Context, conv *protocol.Conversation) error
	// Reset returns an open conversation to the initial state with empty
	// fields. Resetting a missing record is a no-op.
	Reset(ctx context.Context, userID string) error
	// Touch refreshes an open conversation's updated_at without changing
	// state or fields. Touching a missing record is a no-op.
	Touch(ctx context.Context, userID string) error
	// ScanStale returns open, non-initial conversations whose last update
	// is older than the cutoff.
	ScanStale(ctx context.Context, cutoff time.Time) ([]*protocol.Conversation, error)
	// List returns all conversation records, most recently updated first.
	List(ctx context.Context) ([]*protocol.Conversation, error)
	// CountActive returns the number of open conversations past the
	// initial state.
	CountActive(ctx context.Context) (int, error)
	// AppendLog appends one entry to the message audit trail.
	AppendLog(ctx context.Context, entry *protocol.LogEntry) error
	// History returns the newest log entries for a user, oldest first.
	History(ctx context.Context, userID string, limit int) ([]*protocol.LogEntry, error)
}
