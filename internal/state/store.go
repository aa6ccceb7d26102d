package state

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Keys a Store is asked to hold. Values are opaque strings at this layer.
const (
	KeyAuthStatus       = "auth_status"
	KeyLastTokenRefresh = "last_token_refresh"
	KeyLastActivity     = "last_activity"
)

// StatusAuthenticated is the only value ever written under KeyAuthStatus;
// absence of the key means "not authenticated".
const StatusAuthenticated = "authenticated"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("state: key not found")

// Store is the persistence boundary for session markers.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// EncodeTime renders t in the on-wire marker format (unix milliseconds).
func EncodeTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// DecodeTime parses a marker written by EncodeTime.
func DecodeTime(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
