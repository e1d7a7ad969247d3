package core

import (
	"context"

	"github.com/google/uuid"
)

// ctxKey namespaces this package's context keys so they can't collide
// with keys another package stores under the same concrete type.
type ctxKey int

const requestIDCtxKey ctxKey = iota

// WithRequestID returns a copy of ctx carrying requestID, retrievable
// later with GetRequestID. rpcproto mints one for each notify failure it
// logs, so that log line carries a request_id field.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

// GetRequestID returns the request ID stored in ctx, or "" if none was
// attached.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// GenerateRequestID returns a fresh random request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// WithNewRequestID is WithRequestID(ctx, GenerateRequestID()).
func WithNewRequestID(ctx context.Context) context.Context {
	return WithRequestID(ctx, GenerateRequestID())
}
