package sessionkit

import (
	"time"

	"github.com/scstanton20/sessionkit/internal/state"
	"github.com/scstanton20/sessionkit/internal/transport"
)

// User defines a public type used by sessionkit APIs.
//
// User instances are produced by the backend on login, refresh, and profile
// reads and are treated as immutable snapshots.
type User = transport.User

// Session defines a public type used by sessionkit APIs.
//
// Session is the payload of a successful login or refresh: the user, the
// fingerprint the backend bound the cookie to, and the rate-limited caveat.
type Session = transport.Session

// FieldError is one entry of a structured validation failure.
type FieldError = transport.FieldError

// ValidationError carries field-level validation detail from the backend.
// Its message prefers the first structured detail over the generic string.
type ValidationError = transport.ValidationError

// PasswordChangeRequiredError reports a refresh the backend refused until
// the account password is rotated. It never triggers a retry.
type PasswordChangeRequiredError = transport.PasswordChangeRequiredError

// StatusError is the fallback classification for unexpected backend
// responses.
type StatusError = transport.StatusError

// StateStore persists the cross-instance session markers (auth status,
// last refresh, last activity). Implementations must be safe for
// concurrent use; a missing key is reported with ErrStateNotFound.
type StateStore = state.Store

// NewMemoryStateStore returns the in-process StateStore used when no
// Redis client is supplied. Markers vanish with the process.
func NewMemoryStateStore() StateStore {
	return state.NewMemoryStore()
}

// Status represents the lifecycle state of the client session.
type Status uint8

const (
	// StatusUnauthenticated is an exported constant or variable used by the session client.
	StatusUnauthenticated Status = iota
	// StatusAuthenticating is an exported constant or variable used by the session client.
	StatusAuthenticating
	// StatusAuthenticated is an exported constant or variable used by the session client.
	StatusAuthenticated
	// StatusRefreshing is an exported constant or variable used by the session client.
	StatusRefreshing
	// StatusLoggedOut is an exported constant or variable used by the session client.
	StatusLoggedOut
)

// String reports the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusRefreshing:
		return "refreshing"
	case StatusLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// EventKind identifies a refresh lifecycle notification.
type EventKind uint8

const (
	// EventRefreshStarted fires when a refresh flight leaves the ground.
	EventRefreshStarted EventKind = iota
	// EventRefreshSucceeded fires when a flight settles successfully;
	// the event carries the refreshed user.
	EventRefreshSucceeded
	// EventRefreshFailed fires when a flight settles with an error.
	EventRefreshFailed
	// EventLoggedOut fires when the lifecycle manager tears the session
	// down, whether by request or because refreshing became hopeless.
	EventLoggedOut
)

// String reports the wire-style name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventRefreshStarted:
		return "refresh-started"
	case EventRefreshSucceeded:
		return "refresh-succeeded"
	case EventRefreshFailed:
		return "refresh-failed"
	case EventLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

// RefreshEvent is the notification fanned out to Subscribe listeners.
type RefreshEvent struct {
	Kind EventKind
	At   time.Time

	// User is set on EventRefreshSucceeded.
	User *User

	// Err is set on EventRefreshFailed and on EventLoggedOut when the
	// teardown was forced by an error.
	Err error
}

// VisibilityMonitor reports whether the embedding application is in the
// foreground. The lifecycle manager skips proactive refreshes while hidden
// and refreshes immediately when visibility returns.
//
// Implementations must keep Events open for the life of the monitor; a nil
// Events channel disables visibility edges and only Visible is consulted.
type VisibilityMonitor interface {
	Visible() bool
	Events() <-chan bool
}

// AlwaysVisible is the default VisibilityMonitor: a headless client that
// never goes to the background.
type AlwaysVisible struct{}

// Visible reports true.
func (AlwaysVisible) Visible() bool { return true }

// Events reports nil; there are no visibility edges to observe.
func (AlwaysVisible) Events() <-chan bool { return nil }
