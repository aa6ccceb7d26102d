package sessionkit

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/scstanton20/sessionkit/internal/refresh"
	"github.com/scstanton20/sessionkit/internal/state"
	"github.com/scstanton20/sessionkit/internal/transport"
)

// Builder defines a public type used by sessionkit APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	httpClient *http.Client
	redis      *redis.Client
	store      StateStore
	visibility VisibilityMonitor
	auditSink  AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with defaults; chain With* calls and finish
// with Build. Build performs no I/O, so construction is safe anywhere.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; later With* calls still apply
// on top of it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL describes the withbaseurl operation and its observable behavior.
//
// WithBaseURL sets the backend origin, e.g. "https://api.example.com".
func (b *Builder) WithBaseURL(url string) *Builder {
	b.config.Backend.BaseURL = url
	return b
}

// WithHTTPClient describes the withhttpclient operation and its observable behavior.
//
// WithHTTPClient supplies the client carrying the session cookies. A client
// without a cookie jar is shallow-copied and given one.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis stores session markers in Redis so concurrent client instances
// observe each other. Without it markers live in process memory.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithStateStore describes the withstatestore operation and its observable behavior.
//
// WithStateStore overrides the marker store entirely; it wins over WithRedis.
func (b *Builder) WithStateStore(store StateStore) *Builder {
	b.store = store
	return b
}

// WithVisibilityMonitor describes the withvisibilitymonitor operation and its observable behavior.
//
// WithVisibilityMonitor gates proactive refreshes on application visibility.
// The default monitor reports always visible.
func (b *Builder) WithVisibilityMonitor(m VisibilityMonitor) *Builder {
	b.visibility = m
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink receives session audit events when auditing is enabled in
// the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled toggles the in-process counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms toggles the refresh latency histogram; it only
// records when metrics are enabled too.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, wires every component, and returns the
// ready Client. A Builder builds once; reusing it fails.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- TRANSPORT --------
	api, err := transport.New(transport.Config{
		BaseURL:    cfg.Backend.BaseURL,
		HTTPClient: b.httpClient,
		UserAgent:  cfg.Backend.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	// -------- MARKER STORE --------
	store := b.store
	if store == nil {
		if b.redis != nil {
			store = state.NewRedisStore(b.redis, cfg.State.Prefix, cfg.State.TTL)
		} else {
			store = state.NewMemoryStore()
		}
	}

	// -------- CLIENT --------
	client := &Client{
		config:      cfg,
		api:         api,
		store:       store,
		hub:         newSignalHub(cfg.Signals.BufferSize),
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		visibility:  b.visibility,
		fingerprint: newFingerprint(cfg.Fingerprint, cfg.Backend.UserAgent),
		retrySleep:  sleepContext,
	}
	if client.visibility == nil {
		client.visibility = AlwaysVisible{}
	}

	client.coord = refresh.New(refresh.Config{
		MaxQueue: cfg.Coordinator.MaxPending,
		Timeout:  cfg.Coordinator.FlightTimeout,
		OnFlight: client.onFlightStart,
		OnEnqueue: func(int) {
			client.metricInc(MetricRefreshCoalesced)
		},
		OnReject: client.onFlightReject,
		OnSettle: client.onFlightSettle,
	}, client.runRefresh)

	client.ready = true
	b.built = true

	return client, nil
}
