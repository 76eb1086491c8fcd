package logring

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestTailWraparound(t *testing.T) {
	r := New(3)
	for i := range 5 {
		r.Append(Entry{Message: fmt.Sprintf("m%d", i)})
	}

	got := r.Tail(0)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Message != "m2" || got[2].Message != "m4" {
		t.Errorf("wrong window: %v", got)
	}

	last := r.Tail(2)
	if len(last) != 2 || last[1].Message != "m4" {
		t.Errorf("tail(2) = %v", last)
	}
}

func TestSinceFilters(t *testing.T) {
	r := New(10)
	base := time.Now()
	r.Append(Entry{Time: base.Add(-time.Hour), Level: "ERROR", Message: "old"})
	r.Append(Entry{Time: base, Level: "INFO", Message: "info"})
	r.Append(Entry{Time: base, Level: "WARN", Message: "warn"})

	got := r.Since(base.Add(-time.Minute), slog.LevelWarn)
	if len(got) != 1 || got[0].Message != "warn" {
		t.Errorf("got %v", got)
	}

	all := r.Since(time.Time{}, slog.LevelDebug)
	if len(all) != 3 {
		t.Errorf("all = %d", len(all))
	}
}

func TestHandlerCaptures(t *testing.T) {
	ring := New(10)
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	logger := slog.New(Wrap(inner, ring))

	logger.Info("turn handled", "user", "u1")
	logger.With("component", "reaper").Warn("sweep slow")

	got := ring.Tail(0)
	if len(got) != 2 {
		t.Fatalf("captured %d entries", len(got))
	}
	if got[0].Attrs["user"] != "u1" {
		t.Errorf("attrs = %v", got[0].Attrs)
	}
	if got[1].Attrs["component"] != "reaper" {
		t.Errorf("pre-bound attrs = %v", got[1].Attrs)
	}
	if got[1].Level != "WARN" {
		t.Errorf("level = %q", got[1].Level)
	}
}

func TestHandlerErrorAttr(t *testing.T) {
	ring := New(4)
	logger := slog.New(Wrap(slog.NewTextHandler(io.Discard, nil), ring))

	logger.Error("failed", "error", fmt.Errorf("boom"))
	got := ring.Tail(1)
	if got[0].Attrs["error"] != "boom" {
		t.Errorf("error attr = %v", got[0].Attrs["error"])
	}
}
