package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/taborda-io/taborda/pkg/protocol"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.DB().Close() })
	return s
}

func TestUpsertAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := protocol.NewConversation("5511999990000")
	conv.State = protocol.StateAskingEmail
	conv.Fields = map[string]string{protocol.FieldName: "Ana"}

	if err := s.Upsert(ctx, conv); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if conv.UpdatedAt.IsZero() {
		t.Error("upsert must set UpdatedAt")
	}

	got, err := s.Load(ctx, "5511999990000")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State != protocol.StateAskingEmail {
		t.Errorf("state = %q", got.State)
	}
	if got.Fields[protocol.FieldName] != "Ana" {
		t.Errorf("fields = %v", got.Fields)
	}
	if got.Status != protocol.StatusOpen {
		t.Errorf("status = %q", got.Status)
	}
}

func TestLoadMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := protocol.NewConversation("u1")
	s.Upsert(ctx, conv)

	conv.State = protocol.StateWaitingProblemType
	conv.Fields = map[string]string{protocol.FieldProblemType: "Internet"}
	if err := s.Upsert(ctx, conv); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, _ := s.Load(ctx, "u1")
	if got.State != protocol.StateWaitingProblemType {
		t.Errorf("state = %q", got.State)
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := protocol.NewConversation("u1")
	conv.State = protocol.StateAskingPhone
	conv.Fields = map[string]string{protocol.FieldName: "Ana"}
	s.Upsert(ctx, conv)

	if err := s.Reset(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	got, _ := s.Load(ctx, "u1")
	if got.State != protocol.StateInitial {
		t.Errorf("state = %q", got.State)
	}
	if len(got.Fields) != 0 {
		t.Errorf("fields = %v", got.Fields)
	}
	if got.Status != protocol.StatusOpen {
		t.Errorf("status = %q", got.Status)
	}

	// Resetting a missing record is a no-op, not an error.
	if err := s.Reset(ctx, "missing"); err != nil {
		t.Errorf("reset missing: %v", err)
	}
}

func TestResetLeavesClosedUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := protocol.NewConversation("u1")
	conv.State = protocol.StateAskingPhone
	s.Upsert(ctx, conv)
	if _, err := s.DB().Exec(`UPDATE user_conversations SET status = 'closed' WHERE user_id = 'u1'`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.Reset(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// The status guard keeps the reset from rewriting non-open records.
	got, _ := s.Load(ctx, "u1")
	if got.State != protocol.StateAskingPhone {
		t.Errorf("state = %q, closed record must not reset", got.State)
	}
}

func TestTouchRefreshesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := protocol.NewConversation("u1")
	conv.State = protocol.StateAskingEmail
	s.Upsert(ctx, conv)
	backdate(t, s, "u1", time.Now().Add(-2*time.Hour))

	if err := s.Touch(ctx, "u1"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := s.ScanStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("touched conversation still scanned as stale")
	}

	loaded, _ := s.Load(ctx, "u1")
	if loaded.State != protocol.StateAskingEmail {
		t.Errorf("state = %q, touch must not change state", loaded.State)
	}

	// Touching a missing record is a no-op, not an error.
	if err := s.Touch(ctx, "missing"); err != nil {
		t.Errorf("touch missing: %v", err)
	}
}

func TestCountActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	midFlow := protocol.NewConversation("u1")
	midFlow.State = protocol.StateAskingName
	s.Upsert(ctx, midFlow)

	another := protocol.NewConversation("u2")
	another.State = protocol.StateWaitingConfirmation
	s.Upsert(ctx, another)

	// Initial-state records are registered users, not active intakes.
	s.Upsert(ctx, protocol.NewConversation("u3"))

	got, err := s.CountActive(ctx)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if got != 2 {
		t.Errorf("active = %d, want 2", got)
	}
}

func backdate(t *testing.T, s *SQLiteStore, userID string, to time.Time) {
	t.Helper()
	_, err := s.DB().Exec(`UPDATE user_conversations SET updated_at = ? WHERE user_id = ?`,
		to.UTC().Format(time.RFC3339), userID)
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

func TestScanStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := protocol.NewConversation("stale-user")
	stale.State = protocol.StateAskingEmail
	s.Upsert(ctx, stale)
	backdate(t, s, "stale-user", time.Now().Add(-2*time.Hour))

	fresh := protocol.NewConversation("fresh-user")
	fresh.State = protocol.StateAskingName
	s.Upsert(ctx, fresh)

	// Initial-state records are never stale, no matter how old.
	idle := protocol.NewConversation("idle-user")
	s.Upsert(ctx, idle)
	backdate(t, s, "idle-user", time.Now().Add(-48*time.Hour))

	got, err := s.ScanStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 stale conversation, got %d", len(got))
	}
	if got[0].UserID != "stale-user" {
		t.Errorf("user = %q", got[0].UserID)
	}
}

func TestScanStaleAfterReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := protocol.NewConversation("u1")
	conv.State = protocol.StateAskingEmail
	s.Upsert(ctx, conv)
	backdate(t, s, "u1", time.Now().Add(-2*time.Hour))

	s.Reset(ctx, "u1")

	// Reset refreshed updated_at and returned the state to initial, so the
	// record drops out of the reaper's window.
	got, err := s.ScanStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no stale conversations after reset, got %d", len(got))
	}
}

func TestCorruptedStateAndFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.DB().Exec(`
		INSERT INTO user_conversations (user_id, state, fields, status, updated_at)
		VALUES ('u1', 'bogus_state', 'not json', 'open', ?)
	`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State != protocol.StateUnknown {
		t.Errorf("state = %q, want unknown", got.State)
	}
	if got.Fields == nil || len(got.Fields) != 0 {
		t.Errorf("fields = %v, want empty map", got.Fields)
	}
}

func TestAppendLogAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []*protocol.LogEntry{
		{UserID: "u1", Direction: protocol.DirectionInbound, Body: "oi", State: protocol.StateInitial},
		{UserID: "u1", Direction: protocol.DirectionOutbound, Body: "bem-vindo", State: protocol.StateWaitingStart},
		{UserID: "u2", Direction: protocol.DirectionInbound, Body: "other", State: protocol.StateInitial},
	}
	for _, e := range entries {
		if err := s.AppendLog(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
		if e.ID == "" {
			t.Error("append must assign an ID")
		}
	}

	got, err := s.History(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Body != "oi" || got[1].Body != "bem-vindo" {
		t.Errorf("wrong order: %q, %q", got[0].Body, got[1].Body)
	}
	if got[1].State != protocol.StateWaitingStart {
		t.Errorf("state tag = %q", got[1].State)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, protocol.NewConversation("u1"))
	s.Upsert(ctx, protocol.NewConversation("u2"))

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 conversations, got %d", len(got))
	}
}
