// Package logring keeps the most recent slog records in memory so the
// admin API can serve them without touching disk.
package logring

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Ring is a fixed-size, thread-safe buffer of log entries.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	count   int
}

// New creates a ring holding up to size entries.
func New(size int) *Ring {
	return &Ring{entries: make([]Entry, size)}
}

// Append adds an entry, evicting the oldest once the ring is full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
	r.mu.Unlock()
}

// Tail returns up to n entries, oldest first. n <= 0 returns everything.
func (r *Ring) Tail(n int) []Entry {
	all := r.snapshot()
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Since returns entries at or above minLevel recorded after t, oldest
// first. A zero t matches everything.
func (r *Ring) Since(t time.Time, minLevel slog.Level) []Entry {
	var out []Entry
	for _, e := range r.snapshot() {
		if !t.IsZero() && e.Time.Before(t) {
			continue
		}
		if levelOf(e.Level) < minLevel {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (r *Ring) snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, r.count)
	start := 0
	if r.count == len(r.entries) {
		start = r.next
	}
	for i := range r.count {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}

func levelOf(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Handler tees slog records into a Ring while delegating to an inner
// handler. The ring captures every level; the inner handler keeps its own
// filter.
type Handler struct {
	inner slog.Handler
	ring  *Ring
	attrs []slog.Attr
}

// Wrap creates a handler that records into ring and delegates to inner.
func Wrap(inner slog.Handler, ring *Ring) *Handler {
	return &Handler{inner: inner, ring: ring}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = attrValue(a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = attrValue(a.Value)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	h.ring.Append(Entry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: rec.Message,
		Attrs:   attrs,
	})

	if h.inner.Enabled(ctx, rec.Level) {
		return h.inner.Handle(ctx, rec)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner: h.inner.WithAttrs(attrs),
		ring:  h.ring,
		attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), ring: h.ring, attrs: h.attrs}
}

// attrValue flattens slog values into JSON-safe types; errors become
// strings so they don't marshal to {}.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	raw := v.Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}
