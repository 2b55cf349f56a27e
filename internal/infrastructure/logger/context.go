package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	scopeKey
)

// requestScope identifies who a request runs for. It is copied on every
// change so contexts never share a mutable value.
type requestScope struct {
	requestID string
	userID    string
	role      string
}

func scopeFrom(ctx context.Context) requestScope {
	s, _ := ctx.Value(scopeKey).(requestScope)
	return s
}

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID records the request id and returns the enriched logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	s := scopeFrom(ctx)
	s.requestID = requestID
	return attach(ctx, s, logger.With(zap.String("request_id", requestID)))
}

// WithUserID records the authenticated user and returns the enriched logger
func WithUserID(ctx context.Context, logger *zap.Logger, userID string) (context.Context, *zap.Logger) {
	s := scopeFrom(ctx)
	s.userID = userID
	return attach(ctx, s, logger.With(zap.String("user_id", userID)))
}

// WithRole records the caller's role and returns the enriched logger
func WithRole(ctx context.Context, logger *zap.Logger, role string) (context.Context, *zap.Logger) {
	s := scopeFrom(ctx)
	s.role = role
	return attach(ctx, s, logger.With(zap.String("role", role)))
}

func attach(ctx context.Context, s requestScope, logger *zap.Logger) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, scopeKey, s)
	return WithContext(ctx, logger), logger
}

// RequestID returns the request id recorded in ctx
func RequestID(ctx context.Context) string { return scopeFrom(ctx).requestID }

// UserID returns the authenticated user recorded in ctx
func UserID(ctx context.Context) string { return scopeFrom(ctx).userID }

// Role returns the caller's role recorded in ctx
func Role(ctx context.Context) string { return scopeFrom(ctx).role }

// TraceID returns the id of the active trace, or "" outside a sampled span
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// For returns base tagged with the trace and request scope carried by ctx.
// Components hold their own logger built at startup; For correlates its
// entries with the request that triggered them. A nil base uses the
// request logger, which already carries the scope fields.
func For(ctx context.Context, base *zap.Logger) *zap.Logger {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if base == nil {
		return FromContext(ctx).With(fields...)
	}

	s := scopeFrom(ctx)
	if s.requestID != "" {
		fields = append(fields, zap.String("request_id", s.requestID))
	}
	if s.userID != "" {
		fields = append(fields, zap.String("user_id", s.userID))
	}
	if s.role != "" {
		fields = append(fields, zap.String("role", s.role))
	}
	return base.With(fields...)
}
