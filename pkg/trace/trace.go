package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// HeaderName is the request/response header carrying the trace id.
const HeaderName = "X-Trace-ID"

type traceIDKey struct{}

// GenerateTraceID returns a random 128-bit hex id.
func GenerateTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext returns the trace id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext stores traceID in ctx.
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// FromHeaders picks the first non-empty value of X-Trace-ID and X-Request-ID,
// generating a fresh id when both are empty.
func FromHeaders(traceHeader, requestHeader string) string {
	if traceHeader != "" {
		return traceHeader
	}
	if requestHeader != "" {
		return requestHeader
	}
	return GenerateTraceID()
}
