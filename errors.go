package sessionkit

import (
	"errors"

	"github.com/scstanton20/sessionkit/internal/refresh"
	"github.com/scstanton20/sessionkit/internal/state"
	"github.com/scstanton20/sessionkit/internal/transport"
)

var (
	// ErrClientNotReady is returned when a Client was not produced by
	// Builder.Build.
	ErrClientNotReady = errors.New("client not initialized")
	// ErrClientClosed is returned after Close; a closed Client never
	// touches the network again.
	ErrClientClosed = errors.New("client closed")
	// ErrNotAuthenticated is returned by operations that require a live
	// session when there is none.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired marks a session the backend refused to extend;
	// the only way forward is a fresh login.
	ErrSessionExpired = errors.New("session expired")
	// ErrFingerprintMismatch marks a refresh whose echoed session
	// fingerprint did not match the one recorded at login. The client
	// logs out immediately when it sees this.
	ErrFingerprintMismatch = errors.New("session fingerprint mismatch")
	// ErrRetryBudgetExhausted marks a proactive refresh chain that used
	// every backoff attempt without a success.
	ErrRetryBudgetExhausted = errors.New("refresh retry budget exhausted")
	// ErrLoginInProgress is returned when Login races another Login on
	// the same Client.
	ErrLoginInProgress = errors.New("login already in progress")
	// ErrAlreadyAuthenticated is returned by Login while a session is
	// live; call Logout first.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrActivityAnomaly marks a persisted activity timestamp from the
	// future, which means another party is writing this client's
	// markers.
	ErrActivityAnomaly = errors.New("activity marker anomaly")
)

// Wire-level errors surface under their transport identities so callers can
// match them with errors.Is / errors.As against the root package alone.
var (
	// ErrUnauthorized is an exported constant or variable used by the session client.
	ErrUnauthorized = transport.ErrUnauthorized
	// ErrRefreshInvalid is an exported constant or variable used by the session client.
	ErrRefreshInvalid = transport.ErrRefreshInvalid
	// ErrTooManyPending is returned without queueing when a caller would
	// push the refresh queue past its bound.
	ErrTooManyPending = refresh.ErrQueueFull
	// ErrRefreshTimeout is delivered to every caller of a refresh flight
	// that outlived its timeout.
	ErrRefreshTimeout = refresh.ErrFlightTimeout
	// ErrStateNotFound is returned by StateStore implementations for a
	// key that was never written or has expired.
	ErrStateNotFound = state.ErrNotFound
)
