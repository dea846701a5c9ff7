package pipeline

import "context"

type requestIDKey struct{}

// WithRequestID attaches a caller-chosen request id to ctx. Generate and
// Analyze log under this id instead of minting a new one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
