package logger

import "context"

// contextKey is private so other packages cannot collide with our keys.
type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID stores the request id in the context for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id from the context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
