package observability

import (
	"context"
	"log/slog"

	"github.com/geocoder89/incidentdesk/internal/actorctx"
	"go.opentelemetry.io/otel/trace"
)

// ContextHandler stamps records with what the context knows: the active
// span and the browser client and user the request belongs to. Keys the
// caller already set are left alone.
type ContextHandler struct {
	next slog.Handler
}

func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	var hasClient, hasUser bool
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "client_id":
			hasClient = true
		case "user_id":
			hasUser = true
		}
		return true
	})

	if id, ok := actorctx.ClientIDFrom(ctx); ok && !hasClient {
		r.AddAttrs(slog.String("client_id", id))
	}
	if id, ok := actorctx.UserIDFrom(ctx); ok && !hasUser {
		r.AddAttrs(slog.String("user_id", id))
	}

	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}
