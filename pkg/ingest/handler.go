package ingest

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/storage"
)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLevel sets the minimum level recorded as a fault. Defaults to Error.
func WithLevel(level slog.Leveler) HandlerOption {
	return func(h *Handler) {
		h.level = level
	}
}

// WithLoggerName sets the logger name stored with each occurrence.
func WithLoggerName(name string) HandlerOption {
	return func(h *Handler) {
		h.name = name
	}
}

// Handler is a slog.Handler that records log records carrying an error as
// fault occurrences, then passes every record on to next. Recording goes
// through the pool and never blocks the logging call on storage.
type Handler struct {
	next  slog.Handler
	pool  *Pool
	level slog.Leveler
	name  string

	// attrs are those added with WithAttrs, searched for errors too.
	attrs []slog.Attr
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler wraps next.
func NewHandler(next slog.Handler, pool *Pool, opts ...HandlerOption) *Handler {
	h := &Handler{
		next:  next,
		pool:  pool,
		level: slog.LevelError,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled reports whether next handles level, or level is recorded.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || level >= h.level.Level()
}

// Handle records r as an occurrence when it qualifies, then forwards it.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level.Level() && !captureDisabled(ctx) {
		if err := h.findError(r); err != nil {
			h.capture(r, err)
		}
	}

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs returns a Handler whose next handler carries attrs.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a Handler whose next handler opens group name.
func (h *Handler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

// findError returns the first error valued attribute of r, record
// attributes taking precedence over those added with WithAttrs.
func (h *Handler) findError(r slog.Record) error {
	var found error
	r.Attrs(func(a slog.Attr) bool {
		found = errorOf(a)
		return found == nil
	})
	if found != nil {
		return found
	}

	for _, a := range h.attrs {
		if err := errorOf(a); err != nil {
			return err
		}
	}
	return nil
}

func errorOf(a slog.Attr) error {
	v := a.Value.Resolve()
	if v.Kind() != slog.KindAny {
		return nil
	}
	err, _ := v.Any().(error)
	return err
}

func (h *Handler) capture(r slog.Record, err error) {
	f, ferr := h.pool.store.Builder().FromError(err, callerFrames(r.PC))
	if ferr != nil {
		return
	}

	h.pool.Enqueue(Job{Occurrence: Occurrence{
		Fault:     f,
		Timestamp: r.Time,
		LogEntry: &storage.LogEntry{
			Logger:  h.name,
			Level:   r.Level.String(),
			Message: r.Message,
		},
		Submitter: metrics.SubmitterLog,
	}})
}
