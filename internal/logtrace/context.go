package logtrace

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

// CorrelationIDKey is the context key carrying the request correlation id.
const CorrelationIDKey ctxKey = "correlation_id"

// CtxWithCorrelationID stores id in ctx. An empty id gets a fresh uuid.
func CtxWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// CorrelationID returns the id stored in ctx or "unknown".
func CorrelationID(ctx context.Context) string {
	return extractCorrelationID(ctx)
}

func extractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// EnsureCorrelationID keeps an existing id or attaches a fresh one.
func EnsureCorrelationID(ctx context.Context) context.Context {
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok && v != "" {
		return ctx
	}
	return CtxWithCorrelationID(ctx, "")
}
