package sessionkit

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by sessionkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Backend     BackendConfig
	Coordinator CoordinatorConfig
	Retry       RetryConfig
	Lifecycle   LifecycleConfig
	Fingerprint FingerprintConfig
	State       StateConfig
	Signals     SignalsConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig defines a public type used by sessionkit APIs.
//
// BackendConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BackendConfig struct {
	// BaseURL is the backend origin, e.g. "https://api.example.com".
	BaseURL string

	// UserAgent overrides the User-Agent header on every request.
	UserAgent string
}

/*
====================================
COORDINATOR CONFIG
====================================
*/

// CoordinatorConfig defines a public type used by sessionkit APIs.
//
// CoordinatorConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CoordinatorConfig struct {
	// MaxPending bounds how many callers may queue behind an in-flight
	// refresh. Arrivals beyond the bound fail fast with
	// ErrTooManyPending.
	MaxPending int

	// FlightTimeout races every refresh flight; when it wins, all of
	// that flight's callers receive ErrRefreshTimeout.
	FlightTimeout time.Duration
}

/*
====================================
RETRY CONFIG
====================================
*/

// RetryConfig defines a public type used by sessionkit APIs.
//
// RetryConfig governs the proactive refresh chain only; the 401-retry path
// never backs off.
type RetryConfig struct {
	// MaxAttempts is the budget of consecutive failed flights before the
	// lifecycle manager gives up and logs the session out.
	MaxAttempts int

	// BaseDelay is the first backoff pause; each further attempt doubles
	// it.
	BaseDelay time.Duration

	// MaxDelay caps the doubled pauses. Zero means no cap.
	MaxDelay time.Duration
}

/*
====================================
LIFECYCLE CONFIG
====================================
*/

// LifecycleConfig defines a public type used by sessionkit APIs.
//
// LifecycleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LifecycleConfig struct {
	// RefreshInterval is the proactive cadence while the application is
	// visible. It also bounds staleness: regaining visibility triggers
	// an immediate refresh when the last one is older than this.
	RefreshInterval time.Duration

	// WatchCookies lets the manager peek at JWT-shaped session cookies
	// (unverified) and track their real expiry instead of the fixed
	// interval whenever an expiry is observable.
	WatchCookies bool

	// CookieNames restricts the cookie peek to these names. Empty means
	// any cookie that parses as a JWT.
	CookieNames []string

	// EnforceActivityAnomaly forces a logout when the persisted
	// last-activity marker sits further than ActivitySkew in the
	// future. When false the anomaly is only audited.
	EnforceActivityAnomaly bool

	// ActivitySkew is the tolerated clock drift for the last-activity
	// marker.
	ActivitySkew time.Duration
}

/*
====================================
FINGERPRINT CONFIG
====================================
*/

// FingerprintConfig defines a public type used by sessionkit APIs.
//
// The fingerprint binds the session to one client instance. Attribute
// fields describe the embedding application; unset fields render as
// "unknown" so the digest stays stable.
type FingerprintConfig struct {
	Enabled  bool
	Locale   string
	Timezone string
	Display  string
}

/*
====================================
STATE CONFIG
====================================
*/

// StateConfig defines a public type used by sessionkit APIs.
//
// StateConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StateConfig struct {
	// Prefix namespaces marker keys in shared stores.
	Prefix string

	// TTL bounds marker lifetime in stores that support expiry. Zero
	// keeps markers until deleted.
	TTL time.Duration
}

// SignalsConfig defines a public type used by sessionkit APIs.
//
// SignalsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SignalsConfig struct {
	// BufferSize is the per-subscriber event buffer. A subscriber that
	// falls further behind loses the oldest events.
	BufferSize int
}

// AuditConfig defines a public type used by sessionkit APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by sessionkit APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			UserAgent: "sessionkit/1",
		},
		Coordinator: CoordinatorConfig{
			MaxPending:    50,
			FlightTimeout: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			RefreshInterval: 12 * time.Minute,
			WatchCookies:    false,
			ActivitySkew:    5 * time.Minute,
		},
		Fingerprint: FingerprintConfig{
			Enabled: true,
		},
		State: StateConfig{
			Prefix: "sessionkit",
		},
		Signals: SignalsConfig{
			BufferSize: 16,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Lifecycle.CookieNames = cloneStrings(cfg.Lifecycle.CookieNames)
	return out
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when a field combination cannot produce a
// working client. It does not mutate the receiver.
func (c *Config) Validate() error {
	// Backend
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("Backend BaseURL is required")
	}

	// Coordinator
	if c.Coordinator.MaxPending < 0 {
		return errors.New("Coordinator MaxPending must be >= 0")
	}
	if c.Coordinator.FlightTimeout <= 0 {
		return errors.New("Coordinator FlightTimeout must be > 0")
	}

	// Retry
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("Retry MaxAttempts must be > 0")
	}
	if c.Retry.BaseDelay <= 0 {
		return errors.New("Retry BaseDelay must be > 0")
	}
	if c.Retry.MaxDelay < 0 {
		return errors.New("Retry MaxDelay must be >= 0")
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.New("Retry MaxDelay must be >= BaseDelay")
	}

	// Lifecycle
	if c.Lifecycle.RefreshInterval <= 0 {
		return errors.New("Lifecycle RefreshInterval must be > 0")
	}
	if c.Lifecycle.RefreshInterval <= c.Coordinator.FlightTimeout {
		return errors.New("Lifecycle RefreshInterval must exceed Coordinator FlightTimeout")
	}
	if c.Lifecycle.ActivitySkew < 0 {
		return errors.New("Lifecycle ActivitySkew must be >= 0")
	}
	if c.Lifecycle.EnforceActivityAnomaly && c.Lifecycle.ActivitySkew == 0 {
		return errors.New("Lifecycle ActivitySkew must be > 0 when EnforceActivityAnomaly is true")
	}

	// Signals
	if c.Signals.BufferSize <= 0 {
		return errors.New("Signals BufferSize must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
