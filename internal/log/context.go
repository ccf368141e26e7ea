package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	correlationIDKey ctxKey = "correlation_id"
	runIDKey         ctxKey = "run_id"
)

// ContextWithCorrelationID stores a correlation id, the value that ties
// a Command Surface call to every log line and InternalError it
// produces (§7).
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation id, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// ContextWithRunID stores an OptimizationRun id for log correlation.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the OptimizationRun id, if any.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// WithContext enriches logger with whatever correlation fields ctx carries.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		builder = builder.Str("correlation_id", cid)
		added = true
	}
	if rid := RunIDFromContext(ctx); rid != "" {
		builder = builder.Str("run_id", rid)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}
