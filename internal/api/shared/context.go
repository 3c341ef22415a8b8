package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// ContextKey is the type for context values owned by this package.
type ContextKey string

// TraceIDKey is the key for the per-request trace ID.
const TraceIDKey ContextKey = "traceID"

// traceIDLen is the number of random bytes behind a trace ID.
const traceIDLen = 16

// SetTraceID stamps a fresh trace ID onto the context so log lines and
// error responses for one request can be correlated.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, newTraceID())
}

// GetTraceID retrieves the trace ID from the context, or "" when none
// was set.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// newTraceID returns 32 hex characters of randomness. If the random
// source fails it falls back to a timestamp-derived value rather than
// a constant.
func newTraceID() string {
	b := make([]byte, traceIDLen)
	if _, err := rand.Read(b); err != nil {
		binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
		binary.BigEndian.PutUint64(b[8:], uint64(time.Now().Unix()))
	}
	return hex.EncodeToString(b)
}
