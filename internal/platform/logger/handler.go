package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Handler is an slog.Handler whose backing handler can be replaced at
// runtime. Derivations made with WithAttrs or WithGroup are recorded
// and replayed onto whatever handler is current when a record arrives,
// so loggers derived before a Swap keep following it.
type Handler struct {
	root *atomic.Pointer[slog.Handler]
	ops  []func(slog.Handler) slog.Handler
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler returns a swappable handler backed by initial.
func NewHandler(initial slog.Handler) *Handler {
	root := &atomic.Pointer[slog.Handler]{}
	root.Store(&initial)
	return &Handler{root: root}
}

// Swap atomically replaces the backing handler for this handler and
// everything derived from it.
func (h *Handler) Swap(next slog.Handler) {
	h.root.Store(&next)
}

func (h *Handler) resolve() slog.Handler {
	current := *h.root.Load()
	for _, op := range h.ops {
		current = op(current)
	}
	return current
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.resolve().Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	return h.resolve().Handle(ctx, record)
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *Handler) derive(op func(slog.Handler) slog.Handler) *Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &Handler{root: h.root, ops: append(ops, op)}
}
