package sessionkit

import (
	"context"

	"github.com/scstanton20/sessionkit/internal/transport"
)

type noRetryContextKey struct{}

// WithRequestID attaches a caller-chosen request identifier to ctx. The
// transport stamps it on the outgoing X-Request-ID header instead of
// generating one, and audit events carry it, so client and backend logs can
// be joined.
func WithRequestID(ctx context.Context, id string) context.Context {
	return transport.WithRequestID(ctx, id)
}

// WithoutRetry marks ctx so an application call that hits a 401 is NOT
// refreshed and retried; the unauthorized error surfaces directly. Login,
// refresh, and logout calls ignore the mark.
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryContextKey{}, true)
}

func requestIDFromContext(ctx context.Context) string {
	return transport.RequestIDFrom(ctx)
}

func retryDisabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	disabled, _ := ctx.Value(noRetryContextKey{}).(bool)
	return disabled
}
