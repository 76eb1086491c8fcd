package reaper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taborda-io/taborda/internal/conversation"
	"github.com/taborda-io/taborda/internal/ticket"
	"github.com/taborda-io/taborda/pkg/protocol"
)

func newConvStore(t *testing.T) *conversation.SQLiteStore {
	t.Helper()
	s, err := conversation.NewSQLiteStore(filepath.Join(t.TempDir(), "conv.db"))
	if err != nil {
		t.Fatalf("conversation store: %v", err)
	}
	t.Cleanup(func() { s.DB().Close() })
	return s
}

func backdate(t *testing.T, s *conversation.SQLiteStore, userID string, to time.Time) {
	t.Helper()
	_, err := s.DB().Exec(`UPDATE user_conversations SET updated_at = ? WHERE user_id = ?`,
		to.UTC().Format(time.RFC3339), userID)
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

// flakyTickets fails creation for selected users.
type flakyTickets struct {
	mu      sync.Mutex
	created []*protocol.Ticket
	failFor map[string]bool
}

func (f *flakyTickets) Create(_ context.Context, t *protocol.Ticket) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[t.UserID] {
		return "", errors.New("injected failure")
	}
	t.Number = fmt.Sprintf("TICK-20260830-%06d", len(f.created)+1)
	f.created = append(f.created, t)
	return t.Number, nil
}

func (f *flakyTickets) Get(context.Context, string) (*protocol.Ticket, error) {
	return nil, errors.New("not implemented")
}

func (f *flakyTickets) List(context.Context, ticket.Filter) ([]*protocol.Ticket, error) {
	return nil, nil
}

func (f *flakyTickets) Count(context.Context, ticket.Filter) (int, error) {
	return 0, nil
}

func seedStale(t *testing.T, convs *conversation.SQLiteStore, userID string, state protocol.State, fields map[string]string) {
	t.Helper()
	ctx := context.Background()
	c := protocol.NewConversation(userID)
	c.State = state
	c.Fields = fields
	if err := convs.Upsert(ctx, c); err != nil {
		t.Fatalf("seed: %v", err)
	}
	backdate(t, convs, userID, time.Now().Add(-2*time.Hour))
}

func TestSweepReapsStaleConversation(t *testing.T) {
	convs := newConvStore(t)
	tickets := &flakyTickets{}
	ctx := context.Background()

	seedStale(t, convs, "u1", protocol.StateAskingEmail,
		map[string]string{protocol.FieldName: "Ana"})

	r := New(convs, tickets, time.Hour, nil)
	n, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped = %d", n)
	}

	if len(tickets.created) != 1 {
		t.Fatalf("tickets = %d", len(tickets.created))
	}
	tk := tickets.created[0]
	if tk.Status != protocol.TicketIncomplete {
		t.Errorf("status = %q", tk.Status)
	}
	if tk.Name != "Ana" {
		t.Errorf("name = %q", tk.Name)
	}
	for field, got := range map[string]string{
		"sector": tk.Sector, "phone": tk.Phone, "email": tk.Email,
		"problem_type": tk.ProblemType, "description": tk.ProblemDescription,
	} {
		if got != protocol.NotInformed {
			t.Errorf("%s = %q, want sentinel", field, got)
		}
	}

	got, _ := convs.Load(ctx, "u1")
	if got.State != protocol.StateInitial || len(got.Fields) != 0 || got.Status != protocol.StatusOpen {
		t.Errorf("conversation not reset: %+v", got)
	}
}

func TestSweepSkipsFreshAndInitial(t *testing.T) {
	convs := newConvStore(t)
	tickets := &flakyTickets{}
	ctx := context.Background()

	// Active mid-conversation, recently updated.
	active := protocol.NewConversation("active")
	active.State = protocol.StateAskingName
	convs.Upsert(ctx, active)

	// Old but never started: stays out of the window.
	idle := protocol.NewConversation("idle")
	convs.Upsert(ctx, idle)
	backdate(t, convs, "idle", time.Now().Add(-24*time.Hour))

	r := New(convs, tickets, time.Hour, nil)
	n, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("reaped = %d, want 0", n)
	}
	if len(tickets.created) != 0 {
		t.Errorf("tickets = %d", len(tickets.created))
	}
}

func TestSweepIsolatesPerRecordFailures(t *testing.T) {
	convs := newConvStore(t)
	tickets := &flakyTickets{failFor: map[string]bool{"bad": true}}
	ctx := context.Background()

	seedStale(t, convs, "bad", protocol.StateAskingPhone, nil)
	seedStale(t, convs, "good-1", protocol.StateAskingEmail, nil)
	seedStale(t, convs, "good-2", protocol.StateWaitingConfirmation, nil)

	r := New(convs, tickets, time.Hour, nil)
	n, err := r.Sweep(ctx)
	if err == nil {
		t.Fatal("expected aggregated error for the failed record")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error %q does not name the failed record", err)
	}
	if n != 2 {
		t.Errorf("reaped = %d, want the two healthy records", n)
	}

	// The failed record is untouched and will be retried next run.
	got, _ := convs.Load(ctx, "bad")
	if got.State != protocol.StateAskingPhone {
		t.Errorf("failed record state = %q", got.State)
	}
}

func TestSweepIdempotentAcrossRuns(t *testing.T) {
	convs := newConvStore(t)
	tickets := &flakyTickets{}
	ctx := context.Background()

	seedStale(t, convs, "u1", protocol.StateAskingEmail, nil)

	r := New(convs, tickets, time.Hour, nil)
	if n, _ := r.Sweep(ctx); n != 1 {
		t.Fatalf("first sweep reaped %d", n)
	}
	if n, _ := r.Sweep(ctx); n != 0 {
		t.Errorf("second sweep reaped %d, want 0", n)
	}
	if len(tickets.created) != 1 {
		t.Errorf("tickets = %d, want exactly one", len(tickets.created))
	}
}

func TestStartRunsSweepsOnInterval(t *testing.T) {
	convs := newConvStore(t)
	tickets := &flakyTickets{}

	seedStale(t, convs, "u1", protocol.StateAskingEmail, nil)

	r := New(convs, tickets, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Start(ctx, time.Second) }()

	deadline := time.After(3 * time.Second)
	for {
		tickets.mu.Lock()
		n := len(tickets.created)
		tickets.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("scheduled sweep never fired")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("start returned %v", err)
	}
}
