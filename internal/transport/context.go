package transport

import "context"

type requestIDKey struct{}

// WithRequestID pins the X-Request-ID stamped on requests built from or
// dispatched with ctx, instead of a generated one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom reports the pinned request ID, empty when none.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}
