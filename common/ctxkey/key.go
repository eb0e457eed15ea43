package ctxkey

import (
	"context"
	"maps"
	"strings"
)

// AttributePrefix is prepended to caller supplied attribute keys that lack it.
const AttributePrefix = "llm."

type key int

const (
	// attributesKey holds a map[string]any merged into the summary or embedding
	// event of the call that carries the context.
	// Set in: WithAttributes. Read in: instrument when building events.
	attributesKey key = iota

	// parentSpanIDKey holds the span id that becomes the parent of the call's span.
	// Set in: WithParentSpanID. Read in: monitor.CreateSpan.
	parentSpanIDKey

	// traceIDKey holds the trace id shared by spans of one logical operation.
	// Set in: WithTraceID. Read in: monitor.CreateSpan.
	traceIDKey
)

// WithAttributes returns a ctx carrying attrs for the next instrumented call.
// Keys without the "llm." prefix get it. Attributes already on ctx are kept
// unless overridden.
func WithAttributes(ctx context.Context, attrs map[string]any) context.Context {
	merged := make(map[string]any, len(attrs))
	maps.Copy(merged, Attributes(ctx))
	for k, v := range attrs {
		if !strings.HasPrefix(k, AttributePrefix) {
			k = AttributePrefix + k
		}
		merged[k] = v
	}

	return context.WithValue(ctx, attributesKey, merged)
}

// Attributes returns the attributes set by WithAttributes, or nil.
func Attributes(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(attributesKey).(map[string]any)
	return attrs
}

// WithParentSpanID returns a ctx whose instrumented calls create spans under id.
func WithParentSpanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, id)
}

// ParentSpanID returns the id set by WithParentSpanID.
func ParentSpanID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(parentSpanIDKey).(string)
	return id, ok && id != ""
}

// WithTraceID returns a ctx whose instrumented calls share trace id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID returns the id set by WithTraceID.
func TraceID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(traceIDKey).(string)
	return id, ok && id != ""
}
