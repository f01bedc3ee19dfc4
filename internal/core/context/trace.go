// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"commesse/internal/core/id"
)

// TraceContext contains request tracing information.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext creates a new TraceContext with generated IDs.
// Background jobs (debounced trigger, worker, CLI) use it to get log correlation.
func NewTraceContext() *TraceContext {
	traceID := id.New().String()
	return &TraceContext{
		TraceID:   traceID,
		SpanID:    id.New().String()[:16],
		RequestID: traceID,
	}
}

// Origin tells who asked for a document.
type Origin string

const (
	OriginManual    Origin = "manual"
	OriginAutomatic Origin = "automatic"
	OriginCLI       Origin = "cli"
)

type originKey struct{}

// WithOrigin stores the request origin.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// GetOrigin returns the origin stored in ctx, OriginManual when absent.
func GetOrigin(ctx context.Context) Origin {
	if o, ok := ctx.Value(originKey{}).(Origin); ok {
		return o
	}
	return OriginManual
}
