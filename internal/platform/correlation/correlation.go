// Package correlation scopes log attributes to a context. The slog handler copies them into every
// record logged with that context, so all lines of one lookup or one subscriber session line up.
package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	attrKey     = "correlation_id"
	maxHeaderID = 64
)

type scope struct {
	id    string
	attrs []slog.Attr
}

type contextKey struct{}

// NewID returns the first 8 hex characters of a random UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// FromHeader returns a caller-supplied id when it is short and printable, otherwise a fresh one.
func FromHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxHeaderID {
		return NewID()
	}
	for _, r := range value {
		if r < 0x21 || r > 0x7e {
			return NewID()
		}
	}
	return value
}

// WithID returns a new context carrying the given correlation ID. Attributes already scoped on ctx
// are kept.
func WithID(ctx context.Context, id string) context.Context {
	s := current(ctx)
	return context.WithValue(ctx, contextKey{}, scope{id: id, attrs: s.attrs})
}

// WithAttrs scopes extra attributes to ctx, for example the subscriber id of a session.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	s := current(ctx)
	merged := make([]slog.Attr, 0, len(s.attrs)+len(attrs))
	merged = append(merged, s.attrs...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, contextKey{}, scope{id: s.id, attrs: merged})
}

// ID extracts the correlation ID from ctx, returning ("", false) if not present.
func ID(ctx context.Context) (string, bool) {
	s := current(ctx)
	return s.id, s.id != ""
}

func current(ctx context.Context) scope {
	s, _ := ctx.Value(contextKey{}).(scope)
	return s
}

// Handler adds the correlation id and scoped attributes of the record's context.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	s := current(ctx)
	if s.id != "" {
		r.AddAttrs(slog.String(attrKey, s.id))
	}
	r.AddAttrs(s.attrs...)
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
