package ticket

import (
	"context"
	"time"

	"github.com/taborda-io/taborda/pkg/protocol"
)

// Store is the persistence interface for the append-only ticket archive.
type Store interface {
	// Create inserts a finalized ticket, assigning a ticket number when
	// the record carries none, and returns the number.
	Create(ctx context.Context, t *protocol.Ticket) (string, error)
	// Get retrieves a ticket by its number.
	Get(ctx context.Context, number string) (*protocol.Ticket, error)
	// List returns tickets matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*protocol.Ticket, error)
	// Count returns the number of tickets matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)
}

// Filter constrains ticket list and count queries.
type Filter struct {
	Status       protocol.CompletionStatus // empty = all
	UserID       string                    // exact match
	CreatedAfter time.Time                 // zero = all
	Limit        int                       // 0 = no limit
}
