// Package reaper force-closes conversations abandoned mid-flow. Each sweep
// turns every idle open conversation into an incomplete ticket and resets
// the conversation record, so abandoned intakes are recorded instead of
// silently lost.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taborda-io/taborda/internal/conversation"
	"github.com/taborda-io/taborda/internal/ticket"
	"github.com/taborda-io/taborda/pkg/protocol"
)

// Reaper periodically sweeps for stale conversations.
type Reaper struct {
	Conversations conversation.Store
	Tickets       ticket.Store
	// IdleThreshold is the minimum time since the last update before a
	// conversation is eligible. Independent of the run interval.
	IdleThreshold time.Duration
	Logger        *slog.Logger

	cron *cron.Cron
	now  func() time.Time
}

// New creates a reaper.
func New(convs conversation.Store, tickets ticket.Store, idleThreshold time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		Conversations: convs,
		Tickets:       tickets,
		IdleThreshold: idleThreshold,
		Logger:        logger,
		cron:          cron.New(),
		now:           time.Now,
	}
}

// Start schedules sweeps at the given interval and blocks until the
// context is cancelled.
func (r *Reaper) Start(ctx context.Context, interval time.Duration) error {
	if r.IdleThreshold < interval {
		r.Logger.Warn("idle threshold shorter than run interval; overlapping sweeps may race",
			"idle_threshold", r.IdleThreshold, "interval", interval)
	}

	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := r.Sweep(ctx); err != nil {
			r.Logger.Error("sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("reaper: schedule: %w", err)
	}

	r.cron.Start()
	r.Logger.Info("reaper started", "interval", interval, "idle_threshold", r.IdleThreshold)

	<-ctx.Done()
	r.cron.Stop()
	r.Logger.Info("reaper stopped")
	return ctx.Err()
}

// Sweep runs one pass and returns the number of conversations reaped.
// A scan failure aborts the whole run; a single record's failure is
// isolated so the remaining records are still processed, with all
// failures joined into the returned error.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.IdleThreshold)
	stale, err := r.Conversations.ScanStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reaper: scan: %w", err)
	}

	var errs []error
	reaped := 0
	for _, conv := range stale {
		if err := r.reap(ctx, conv); err != nil {
			r.Logger.Error("reap failed", "user", conv.UserID, "error", err)
			errs = append(errs, fmt.Errorf("reap %s: %w", conv.UserID, err))
			continue
		}
		reaped++
	}

	if reaped > 0 {
		r.Logger.Info("conversations reaped", "count", reaped)
	}
	return reaped, errors.Join(errs...)
}

// reap converts one stale conversation into an incomplete ticket and
// resets the record. Resetting refreshes updated_at, so overlapping runs
// cannot match the same record twice.
func (r *Reaper) reap(ctx context.Context, conv *protocol.Conversation) error {
	tk := protocol.TicketFromFields(conv.UserID, conv.Fields, protocol.TicketIncomplete)
	number, err := r.Tickets.Create(ctx, tk)
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	if err := r.Conversations.Reset(ctx, conv.UserID); err != nil {
		return fmt.Errorf("reset after ticket %s: %w", number, err)
	}
	r.Logger.Debug("conversation reaped",
		"user", conv.UserID, "ticket", number, "state", string(conv.State))
	return nil
}
