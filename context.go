package deltatrail

import (
	"context"

	"go.uber.org/zap"
)

// metaKey is an unexported context key type.
type metaKey struct{}
type skipKey struct{}

// meta carries operational context logged with each write.
type meta struct {
	operator string
	traceID  string
	reason   string
}

// WithOperator attaches an operator identifier to the context.
func WithOperator(ctx context.Context, v string) context.Context {
	m := extractMeta(ctx)
	m.operator = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithTraceID attaches a trace identifier.
func WithTraceID(ctx context.Context, v string) context.Context {
	m := extractMeta(ctx)
	m.traceID = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithReason attaches a human-readable reason for the change.
func WithReason(ctx context.Context, v string) context.Context {
	m := extractMeta(ctx)
	m.reason = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithSkip marks the context so Track records nothing.
func WithSkip(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

func extractMeta(ctx context.Context) meta {
	if v := ctx.Value(metaKey{}); v != nil {
		if m, ok := v.(meta); ok {
			return m
		}
	}
	return meta{}
}

func extractSkip(ctx context.Context) bool {
	if v, ok := ctx.Value(skipKey{}).(bool); ok {
		return v
	}
	return false
}

func (m meta) fields() []zap.Field {
	var fs []zap.Field
	if m.operator != "" {
		fs = append(fs, zap.String("operator", m.operator))
	}
	if m.traceID != "" {
		fs = append(fs, zap.String("trace_id", m.traceID))
	}
	if m.reason != "" {
		fs = append(fs, zap.String("reason", m.reason))
	}
	return fs
}
