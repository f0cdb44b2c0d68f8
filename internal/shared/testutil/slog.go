// Package testutil provides test helpers shared across packages. The
// capture handler records slog output so tests can assert on what the
// engine logs, including that license keys only ever appear masked.
package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// Record is one captured log record.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// CaptureHandler is a slog.Handler that buffers records in memory.
type CaptureHandler struct {
	mu      sync.Mutex
	records []Record
	attrs   []slog.Attr
}

// NewCapture returns a logger backed by a capture handler.
func NewCapture() (*slog.Logger, *CaptureHandler) {
	handler := &CaptureHandler{}
	return slog.New(handler), handler
}

// Handle implements slog.Handler.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, Record{
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

// Enabled implements slog.Handler. Tests capture every level.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// WithAttrs implements slog.Handler. Derived handlers share the record
// buffer so tests see everything.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedHandler{parent: h, attrs: attrs}
}

// WithGroup implements slog.Handler. Groups are flattened in tests.
func (h *CaptureHandler) WithGroup(string) slog.Handler {
	return h
}

type derivedHandler struct {
	parent *CaptureHandler
	attrs  []slog.Attr
}

func (d *derivedHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range d.attrs {
		r.AddAttrs(a)
	}
	return d.parent.Handle(ctx, r)
}

func (d *derivedHandler) Enabled(context.Context, slog.Level) bool { return true }

func (d *derivedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, d.attrs...), attrs...)
	return &derivedHandler{parent: d.parent, attrs: merged}
}

func (d *derivedHandler) WithGroup(string) slog.Handler { return d }

// Records returns a copy of everything captured so far.
func (h *CaptureHandler) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// ContainsMessage reports whether any record's message contains s.
func (h *CaptureHandler) ContainsMessage(s string) bool {
	for _, r := range h.Records() {
		if strings.Contains(r.Message, s) {
			return true
		}
	}
	return false
}

// AttrValues collects every value logged under the given key.
func (h *CaptureHandler) AttrValues(key string) []any {
	var out []any
	for _, r := range h.Records() {
		if v, ok := r.Attrs[key]; ok {
			out = append(out, v)
		}
	}
	return out
}

// AssertContains fails the test unless a record at the given level
// contains the message.
func AssertContains(t *testing.T, h *CaptureHandler, level slog.Level, message string) {
	t.Helper()
	for _, r := range h.Records() {
		if r.Level == level && strings.Contains(r.Message, message) {
			return
		}
	}
	t.Errorf("log message %q not found at level %s", message, level)
}
