package common

import "context"

type contextKey int

const correlationIDKey contextKey = iota

// WithCorrelationID stores a request correlation ID in the context. The
// same ID becomes the cycle ID of any portfolio review the request
// triggers, so one identifier traces the request from HTTP log line to
// stored recommendation.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext retrieves the correlation ID, or "" if absent.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}
