// Package trace provides trace ID generation and context propagation so that
// every log line and audit row produced while serving one turn can be
// correlated.
package trace

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header a caller may use to supply its own trace ID.
const Header = "X-Trace-Id"

// traceKey is the unexported context key used to store the trace ID.
type traceKey struct{}

// GenerateID returns a new random trace ID of the form "t_<32 hex chars>".
func GenerateID() string {
	return "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Ensure returns ctx unchanged when it already carries a trace ID; otherwise
// it attaches a freshly generated one.
func Ensure(ctx context.Context) context.Context {
	if FromContext(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, GenerateID())
}

// FromRequest returns r's context carrying the caller-supplied trace ID from
// the X-Trace-Id header, or a generated one when the header is absent or
// implausibly long.
func FromRequest(r *http.Request) context.Context {
	id := strings.TrimSpace(r.Header.Get(Header))
	if id == "" || len(id) > 128 {
		id = GenerateID()
	}
	return WithTraceID(r.Context(), id)
}
