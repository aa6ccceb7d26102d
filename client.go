package sessionkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scstanton20/sessionkit/internal/refresh"
	"github.com/scstanton20/sessionkit/internal/state"
	"github.com/scstanton20/sessionkit/internal/transport"
)

// activitySaveInterval throttles persisted activity-marker writes. The
// in-memory timestamp is always current; the store copy lags by at most
// this much.
const activitySaveInterval = 30 * time.Second

// Client coordinates an authenticated session against one backend: it
// owns the cookie jar, serializes refreshes through a single-flight
// coordinator, and keeps cross-instance markers in a state store.
//
// Construct a Client with New()....Build(); the zero value is not
// usable. All methods are safe for concurrent use.
type Client struct {
	config Config

	api        *transport.API
	coord      *refresh.Coordinator
	store      state.Store
	hub        *signalHub
	audit      *auditDispatcher
	metrics    *Metrics
	visibility VisibilityMonitor

	// retrySleep parks the backoff chain between refresh attempts.
	// Tests substitute a recorder; the default honors ctx cancellation.
	retrySleep func(ctx context.Context, d time.Duration) error

	// fingerprint identifies this client instance; its digest is sent
	// at login so the backend can bind the session to it.
	fingerprint Fingerprint

	mu               sync.Mutex
	status           Status
	user             *User
	serverFP         string // fingerprint echo recorded at login
	lastRefresh      time.Time
	lastActivity     time.Time
	lastActivitySave time.Time
	lastRateLimited  bool
	loginActive      bool
	loop             *lifecycleLoop

	closed atomic.Bool
	ready  bool
}

// ============================================================================
// Session operations
// ============================================================================

// Login authenticates with the backend and, on success, starts the
// background session lifecycle. Only one Login may run at a time;
// concurrent calls fail with ErrLoginInProgress. A Client that is
// already authenticated must Logout first.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	switch {
	case c.loginActive:
		c.mu.Unlock()
		return nil, ErrLoginInProgress
	case c.status == StatusAuthenticated || c.status == StatusRefreshing:
		c.mu.Unlock()
		return nil, ErrAlreadyAuthenticated
	}
	c.loginActive = true
	c.status = StatusAuthenticating
	c.mu.Unlock()

	sess, err := c.api.Login(ctx, username, password, c.loginFingerprint())

	c.mu.Lock()
	c.loginActive = false
	if err != nil {
		if c.status == StatusAuthenticating {
			c.status = StatusUnauthenticated
		}
		c.mu.Unlock()

		c.metricInc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, nil, err, func() map[string]string {
			return map[string]string{"username": username}
		})
		return nil, err
	}
	c.mu.Unlock()

	user, _ := c.commitSession(ctx, sess, true)
	c.saveMarkers(ctx, true)
	c.startLifecycle()

	c.metricInc(MetricLoginSuccess)
	c.emitAudit(ctx, auditEventLoginSuccess, true, user, nil, func() map[string]string {
		if !sess.RateLimited {
			return nil
		}
		return map[string]string{"rate_limited": "true"}
	})
	return user, nil
}

// Resume restores a session left behind by a previous process. It
// consults the state store for an authenticated marker and, when one
// exists, verifies the session by fetching the profile (refreshing the
// cookie on the way if it has gone stale). Without a marker it returns
// ErrNotAuthenticated and performs no network call.
func (c *Client) Resume(ctx context.Context) (*User, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}

	status, err := c.store.Get(ctx, state.KeyAuthStatus)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("resume: %w", err)
	}
	if status != state.StatusAuthenticated {
		return nil, ErrNotAuthenticated
	}

	user, err := c.fetchProfile(ctx)
	if err != nil {
		// The marker lied: the cookies are gone. Clear it so the next
		// Resume is a cheap local miss.
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrSessionExpired) {
			c.clearMarkers(ctx)
			return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
		return nil, err
	}

	c.adoptUser(ctx, user)
	c.emitAudit(ctx, auditEventSessionResumed, true, user, nil, nil)
	return user, nil
}

// AdoptSession claims a session established out of band (SSO redirect,
// passkey ceremony, a shared cookie jar). It verifies the cookies by
// fetching the profile and, on success, starts the lifecycle as if the
// Client had logged in itself.
func (c *Client) AdoptSession(ctx context.Context) (*User, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}

	user, err := c.fetchProfile(ctx)
	if err != nil {
		return nil, err
	}

	c.adoptUser(ctx, user)
	c.metricInc(MetricSessionAdopted)
	c.emitAudit(ctx, auditEventSessionAdopted, true, user, nil, nil)
	return user, nil
}

// adoptUser commits an externally verified user and brings the
// lifecycle up. Shared by Resume and AdoptSession.
func (c *Client) adoptUser(ctx context.Context, user *User) {
	now := time.Now()

	c.mu.Lock()
	c.status = StatusAuthenticated
	c.user = user
	c.lastRefresh = now
	c.lastActivity = now
	c.mu.Unlock()

	c.saveMarkers(ctx, true)
	c.startLifecycle()
}

// Logout ends the session. The backend call is advisory: local state,
// markers, and the lifecycle are torn down even when the network call
// fails, and the returned error reports only that network failure.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.ready {
		return ErrClientNotReady
	}

	var netErr error
	c.mu.Lock()
	wasAuthenticated := c.status == StatusAuthenticated || c.status == StatusRefreshing
	c.mu.Unlock()
	if wasAuthenticated {
		netErr = c.api.Logout(ctx)
		if netErr != nil {
			log.Print("sessionkit: logout request failed: ", netErr)
		}
	}

	user := c.teardownSession(ctx, nil)

	c.metricInc(MetricLogout)
	c.emitAudit(ctx, auditEventLogout, netErr == nil, user, netErr, nil)
	return netErr
}

// RequestRefresh forces a refresh now, coalescing with any flight
// already in the air. It blocks until the outcome is known and applies
// the same terminal-error handling as the background lifecycle, so a
// definitively dead session transitions to LoggedOut here too.
func (c *Client) RequestRefresh(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return err
	}

	c.mu.Lock()
	ok := c.status == StatusAuthenticated || c.status == StatusRefreshing
	c.mu.Unlock()
	if !ok {
		return ErrNotAuthenticated
	}
	return c.handleRefreshOutcome(ctx, c.coord.Refresh(ctx))
}

// Profile fetches the caller's profile through the retrying transport
// and updates the cached user on success.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}

	user, err := c.fetchProfile(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.status == StatusAuthenticated || c.status == StatusRefreshing {
		c.user = user
	}
	c.mu.Unlock()
	return user, nil
}

// RecordActivity notes that the embedding application saw real user or
// job activity. The in-memory timestamp updates immediately; the store
// marker is written at most once per activitySaveInterval.
func (c *Client) RecordActivity(ctx context.Context) {
	if c == nil || c.closed.Load() || !c.ready {
		return
	}
	c.touchActivity(ctx)
}

// Close releases the Client: the lifecycle stops, subscribers are
// closed, and buffered audit events are drained. Close never contacts
// the backend; call Logout first to end the session server-side.
// Close is idempotent.
func (c *Client) Close() error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.stopLifecycle(true)
	if c.hub != nil {
		c.hub.close()
	}
	if c.audit != nil {
		c.audit.Close()
	}
	return nil
}

// ============================================================================
// Accessors
// ============================================================================

// Status reports the current lifecycle state.
func (c *Client) Status() Status {
	if c == nil {
		return StatusUnauthenticated
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CurrentUser returns the most recently confirmed user, or nil when the
// Client is not authenticated.
func (c *Client) CurrentUser() *User {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// LastRefresh reports when a refresh last succeeded (zero before the
// first one).
func (c *Client) LastRefresh() time.Time {
	if c == nil {
		return time.Time{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh
}

// LastActivity reports the most recent activity timestamp recorded via
// RecordActivity or a successful API call.
func (c *Client) LastActivity() time.Time {
	if c == nil {
		return time.Time{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Fingerprint returns this instance's device fingerprint.
func (c *Client) Fingerprint() Fingerprint {
	if c == nil {
		return Fingerprint{}
	}
	return c.fingerprint
}

// Subscribe registers a listener for refresh lifecycle events. The
// returned cancel function releases the subscription; it is safe to
// call more than once. Slow subscribers lose the oldest buffered event
// first, never block a refresh.
func (c *Client) Subscribe() (<-chan RefreshEvent, func()) {
	if c == nil || c.hub == nil {
		ch := make(chan RefreshEvent)
		close(ch)
		return ch, func() {}
	}
	return c.hub.subscribe()
}

// MetricsSnapshot returns a point-in-time copy of the client's
// counters. With metrics disabled the snapshot is empty, never nil
// maps.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// Metrics exposes the live metrics collector for exporter bridges. It
// returns nil when metrics are disabled.
func (c *Client) Metrics() *Metrics {
	if c == nil {
		return nil
	}
	return c.metrics
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// SignalsDropped reports how many refresh events were discarded because
// a subscriber fell behind.
func (c *Client) SignalsDropped() uint64 {
	if c == nil || c.hub == nil {
		return 0
	}
	return c.hub.Dropped()
}

// guard rejects calls on a closed or half-built Client.
func (c *Client) guard() error {
	if c == nil || !c.ready {
		return ErrClientNotReady
	}
	if c.closed.Load() {
		return ErrClientClosed
	}
	return nil
}

// ============================================================================
// Refresh flight
// ============================================================================

// runRefresh is the coordinator's flight body: exactly one of these
// runs at a time regardless of how many callers asked. It performs the
// network refresh, validates the fingerprint echo, and commits the
// renewed session.
func (c *Client) runRefresh(ctx context.Context) error {
	sess, err := c.api.Refresh(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	expected := c.serverFP
	c.mu.Unlock()
	if expected != "" && sess.Fingerprint != "" && sess.Fingerprint != expected {
		return fmt.Errorf("%w: session bound to a different client", ErrFingerprintMismatch)
	}

	if _, ok := c.commitSession(ctx, sess, false); ok {
		c.saveMarkers(ctx, false)
	}
	return nil
}

// loginFingerprint returns the digest offered to the backend at login,
// empty when fingerprinting is off.
func (c *Client) loginFingerprint() string {
	if !c.config.Fingerprint.Enabled {
		return ""
	}
	return c.fingerprint.Digest()
}

// onFlightStart runs when the coordinator launches a flight.
func (c *Client) onFlightStart() {
	c.mu.Lock()
	if c.status == StatusAuthenticated {
		c.status = StatusRefreshing
	}
	c.mu.Unlock()

	c.publish(RefreshEvent{Kind: EventRefreshStarted, At: time.Now()})
}

// onFlightReject runs when a caller was turned away because the waiter
// queue is at capacity.
func (c *Client) onFlightReject() {
	c.metricInc(MetricRefreshRejected)
	c.emitAudit(context.Background(), auditEventRefreshRejected, false, c.CurrentUser(), ErrTooManyPending, nil)
}

// onFlightSettle runs once per flight with the shared outcome, after
// every queued caller has been answered.
func (c *Client) onFlightSettle(elapsed time.Duration, err error) {
	if c.metrics.LatencyEnabled() {
		c.metrics.Observe(MetricRefreshLatency, elapsed)
	}

	if err == nil {
		c.metricInc(MetricRefreshSuccess)
		user := c.CurrentUser()
		c.publish(RefreshEvent{Kind: EventRefreshSucceeded, At: time.Now(), User: user})
		c.emitAudit(context.Background(), auditEventRefreshSuccess, true, user, nil, func() map[string]string {
			return map[string]string{"elapsed_ms": fmt.Sprintf("%d", elapsed.Milliseconds())}
		})
		return
	}

	c.metricInc(MetricRefreshFailure)
	if errors.Is(err, ErrRefreshTimeout) {
		c.metricInc(MetricRefreshTimeout)
	}

	c.mu.Lock()
	if c.status == StatusRefreshing {
		// The session is not yet known dead; terminal classification
		// happens in handleRefreshOutcome on the caller side.
		c.status = StatusAuthenticated
	}
	user := c.user
	c.mu.Unlock()

	c.publish(RefreshEvent{Kind: EventRefreshFailed, At: time.Now(), User: user, Err: err})
	c.emitAudit(context.Background(), auditEventRefreshFailure, false, user, err, func() map[string]string {
		return map[string]string{"elapsed_ms": fmt.Sprintf("%d", elapsed.Milliseconds())}
	})
}

// handleRefreshOutcome applies terminal-error policy to a refresh
// result. Errors that prove the session is gone force a logout; every
// other failure is left for the caller's retry policy. The returned
// error is what callers should surface.
func (c *Client) handleRefreshOutcome(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var pcr *PasswordChangeRequiredError
	switch {
	case errors.As(err, &pcr):
		c.metricInc(MetricPasswordChangeRequired)
		c.forceLogout(ctx, err)
	case errors.Is(err, ErrFingerprintMismatch):
		c.metricInc(MetricFingerprintMismatch)
		c.emitAudit(ctx, auditEventFingerprintMismatch, false, c.CurrentUser(), err, nil)
		c.forceLogout(ctx, err)
	case errors.Is(err, ErrRefreshInvalid):
		err = fmt.Errorf("%w: %v", ErrSessionExpired, err)
		c.forceLogout(ctx, err)
	}
	return err
}

// isTerminalRefreshErr reports whether err is one of the outcomes that
// already forced a logout, so retrying cannot help.
func isTerminalRefreshErr(err error) bool {
	if err == nil {
		return false
	}
	var pcr *PasswordChangeRequiredError
	return errors.As(err, &pcr) ||
		errors.Is(err, ErrFingerprintMismatch) ||
		errors.Is(err, ErrRefreshInvalid) ||
		errors.Is(err, ErrSessionExpired)
}

// ============================================================================
// Session state
// ============================================================================

// commitSession records a confirmed session under the lock. login
// toggles the parts that only the initial authentication establishes. A
// refresh that settles after the session already ended is not allowed
// to resurrect it; the second return value reports whether the commit
// took.
func (c *Client) commitSession(ctx context.Context, sess *Session, login bool) (*User, bool) {
	now := time.Now()
	user := sess.User

	c.mu.Lock()
	if !login && (c.status == StatusLoggedOut || c.status == StatusUnauthenticated) {
		c.mu.Unlock()
		return &user, false
	}
	c.status = StatusAuthenticated
	c.user = &user
	c.lastRefresh = now
	c.lastRateLimited = sess.RateLimited
	if login {
		c.serverFP = sess.Fingerprint
		c.lastActivity = now
	} else if c.serverFP == "" && sess.Fingerprint != "" {
		// Backend started echoing a fingerprint mid-session; adopt it
		// as the binding for subsequent comparisons.
		c.serverFP = sess.Fingerprint
	}
	c.mu.Unlock()

	if sess.RateLimited {
		c.metricInc(MetricRefreshRateLimited)
		c.emitAudit(ctx, auditEventRefreshRateLimited, true, &user, nil, nil)
	}
	return &user, true
}

// teardownSession clears all session state and stops the lifecycle. It
// returns the user that was logged out, if any. cause is attached to
// the published event when the teardown was not caller-initiated.
func (c *Client) teardownSession(ctx context.Context, cause error) *User {
	c.mu.Lock()
	user := c.user
	c.status = StatusLoggedOut
	c.user = nil
	c.serverFP = ""
	c.lastRateLimited = false
	loop := c.loop
	c.loop = nil
	c.mu.Unlock()

	if loop != nil {
		loop.cancel()
	}
	c.clearMarkers(ctx)
	c.publish(RefreshEvent{Kind: EventLoggedOut, At: time.Now(), User: user, Err: cause})
	return user
}

// forceLogout tears the session down because the backend proved it
// dead. It is a no-op unless the Client currently holds a session, so
// racing callers collapse to one teardown.
func (c *Client) forceLogout(ctx context.Context, cause error) {
	c.mu.Lock()
	active := c.status == StatusAuthenticated || c.status == StatusRefreshing
	c.mu.Unlock()
	if !active {
		return
	}

	user := c.teardownSession(ctx, cause)
	c.metricInc(MetricLogout)
	c.emitAudit(ctx, auditEventForcedLogout, false, user, cause, nil)
}

// touchActivity refreshes the activity timestamps, persisting at most
// once per activitySaveInterval.
func (c *Client) touchActivity(ctx context.Context) {
	now := time.Now()

	c.mu.Lock()
	c.lastActivity = now
	save := now.Sub(c.lastActivitySave) >= activitySaveInterval
	if save {
		c.lastActivitySave = now
	}
	c.mu.Unlock()

	if !save {
		return
	}
	if err := c.store.Set(ctx, state.KeyLastActivity, state.EncodeTime(now)); err != nil {
		log.Print("sessionkit: persisting activity marker: ", err)
	}
}

// saveMarkers writes the cross-instance session markers. Store errors
// are logged, never surfaced: markers are advisory.
func (c *Client) saveMarkers(ctx context.Context, includeActivity bool) {
	now := time.Now()
	if err := c.store.Set(ctx, state.KeyAuthStatus, state.StatusAuthenticated); err != nil {
		log.Print("sessionkit: persisting auth marker: ", err)
		return
	}
	if err := c.store.Set(ctx, state.KeyLastTokenRefresh, state.EncodeTime(now)); err != nil {
		log.Print("sessionkit: persisting refresh marker: ", err)
	}
	if includeActivity {
		if err := c.store.Set(ctx, state.KeyLastActivity, state.EncodeTime(now)); err != nil {
			log.Print("sessionkit: persisting activity marker: ", err)
		}
		c.mu.Lock()
		c.lastActivitySave = now
		c.mu.Unlock()
	}
}

// clearMarkers removes every session marker.
func (c *Client) clearMarkers(ctx context.Context) {
	err := c.store.Delete(ctx, state.KeyAuthStatus, state.KeyLastTokenRefresh, state.KeyLastActivity)
	if err != nil {
		log.Print("sessionkit: clearing session markers: ", err)
	}
}

// publish fans an event out to subscribers.
func (c *Client) publish(ev RefreshEvent) {
	if c.hub != nil {
		c.hub.publish(ev)
	}
}

// metricInc bumps a counter when metrics are enabled.
func (c *Client) metricInc(id MetricID) {
	if c.metrics != nil {
		c.metrics.Inc(id)
	}
}
