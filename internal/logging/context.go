package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	fetchIDKey contextKey = "fetch_id"
	loggerKey  contextKey = "logger"
)

// ContextWithFetchID returns a context carrying the fetch correlation id.
func ContextWithFetchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, fetchIDKey, id)
}

// FetchIDFromContext returns the fetch id stored in ctx, or "".
func FetchIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(fetchIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithLogger stores a logger in the context.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromContext returns the logger stored in ctx, if any.
func LoggerFromContext(ctx context.Context) (zerolog.Logger, bool) {
	l, ok := ctx.Value(loggerKey).(zerolog.Logger)
	return l, ok
}

// Ctx returns the logger stored in ctx (or fallback) with the fetch id attached.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Ctx(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	l := fallback
	if stored, ok := LoggerFromContext(ctx); ok {
		l = stored
	}
	if id := FetchIDFromContext(ctx); id != "" {
		l = l.With().Str("fetch_id", id).Logger()
	}
	return l
}
