package sessionkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/scstanton20/sessionkit/internal/state"
)

func TestRefreshStormSingleFlight(t *testing.T) {
	b := newTestBackend(t)
	c := newTestClient(t, b, withMetrics)
	mustLogin(t, c)

	release := b.blockRefresh()
	defer release()

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			results <- c.RequestRefresh(context.Background())
		}()
	}

	// One leader in the air, everyone else coalesced behind it.
	waitUntil(t, 2*time.Second, func() bool {
		return c.Report().Coalesced == n-1
	})
	if got := b.refreshCount(); got != 1 {
		t.Fatalf("backend refresh calls while gated = %d, want 1", got)
	}

	release()
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Fatalf("coalesced refresh failed: %v", err)
		}
	}
	if got := b.refreshCount(); got != 1 {
		t.Fatalf("backend refresh calls = %d, want 1", got)
	}

	r := c.Report()
	if r.Flights != 1 || r.Coalesced != n-1 || r.Rejected != 0 {
		t.Fatalf("coordinator stats = %+v", r)
	}
	if got := c.MetricsSnapshot().Counters[MetricRefreshSuccess]; got != 1 {
		t.Fatalf("refresh success counter = %d", got)
	}
}

func TestRefreshBackpressureBound(t *testing.T) {
	b := newTestBackend(t)
	c := newTestClient(t, b, withMetrics, func(cfg *Config) {
		cfg.Coordinator.MaxPending = 2
	})
	mustLogin(t, c)

	release := b.blockRefresh()
	defer release()

	errs := make(chan error, 3)
	refresh := func() { errs <- c.RequestRefresh(context.Background()) }

	go refresh()
	waitUntil(t, 2*time.Second, func() bool { return c.Report().RefreshInFlight })

	go refresh()
	waitUntil(t, 2*time.Second, func() bool { return c.Report().QueueDepth == 1 })

	go refresh()
	waitUntil(t, 2*time.Second, func() bool { return c.Report().QueueDepth == 2 })

	// The queue is full: the fourth caller must fail fast, not block.
	if err := c.RequestRefresh(context.Background()); !errors.Is(err, ErrTooManyPending) {
		t.Fatalf("expected ErrTooManyPending, got %v", err)
	}

	release()
	for i := 0; i < 3; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("queued refresh failed: %v", err)
		}
	}

	r := c.Report()
	if r.Rejected != 1 {
		t.Fatalf("rejected = %d, want 1", r.Rejected)
	}
	if r.QueueDepth != 0 {
		t.Fatalf("queue depth after settle = %d", r.QueueDepth)
	}
	if b.refreshCount() != 1 {
		t.Fatalf("backend refresh calls = %d, want 1", b.refreshCount())
	}
	if got := c.MetricsSnapshot().Counters[MetricRefreshRejected]; got != 1 {
		t.Fatalf("rejected counter = %d", got)
	}
}

func TestRefreshFlightTimeout(t *testing.T) {
	b := newTestBackend(t)
	release := b.blockRefresh()
	defer release()

	c := newTestClient(t, b, withMetrics, func(cfg *Config) {
		cfg.Coordinator.FlightTimeout = 80 * time.Millisecond
	})
	mustLogin(t, c)

	events, cancel := c.Subscribe()
	defer cancel()

	err := c.RequestRefresh(context.Background())
	if !errors.Is(err, ErrRefreshTimeout) {
		t.Fatalf("expected ErrRefreshTimeout, got %v", err)
	}

	// Timeout is transient: the session survives.
	if got := c.Status(); got != StatusAuthenticated {
		t.Fatalf("status after timeout = %v", got)
	}

	recvEvent(t, events, EventRefreshStarted)
	ev := recvEvent(t, events, EventRefreshFailed)
	if !errors.Is(ev.Err, ErrRefreshTimeout) {
		t.Fatalf("failed event error = %v", ev.Err)
	}
	if got := c.MetricsSnapshot().Counters[MetricRefreshTimeout]; got != 1 {
		t.Fatalf("timeout counter = %d", got)
	}
}

func TestRefreshRateLimitedCaveat(t *testing.T) {
	b := newTestBackend(t)
	b.setRateLimited(true)
	c := newTestClient(t, b, withMetrics)
	mustLogin(t, c)

	if err := c.RequestRefresh(context.Background()); err != nil {
		t.Fatalf("rate-limited refresh must still succeed: %v", err)
	}
	if !c.Report().LastRateLimited {
		t.Fatal("rate-limited caveat not recorded")
	}
	if got := c.Status(); got != StatusAuthenticated {
		t.Fatalf("status = %v", got)
	}
	if got := c.MetricsSnapshot().Counters[MetricRefreshRateLimited]; got == 0 {
		t.Fatal("rate-limited counter not bumped")
	}
}

func TestRefreshFingerprintMismatchForcesLogout(t *testing.T) {
	b := newTestBackend(t)
	c := newTestClient(t, b, withMetrics)
	mustLogin(t, c)

	events, cancel := c.Subscribe()
	defer cancel()

	b.setRefreshEcho("not-the-fingerprint-you-logged-in-with")

	err := c.RequestRefresh(context.Background())
	if !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected ErrFingerprintMismatch, got %v", err)
	}
	if got := c.Status(); got != StatusLoggedOut {
		t.Fatalf("status = %v, want logged_out", got)
	}
	if _, err := c.store.Get(context.Background(), state.KeyAuthStatus); !errors.Is(err, ErrStateNotFound) {
		t.Fatal("markers survived fingerprint mismatch")
	}

	recvEvent(t, events, EventRefreshStarted)
	recvEvent(t, events, EventRefreshFailed)
	ev := recvEvent(t, events, EventLoggedOut)
	if !errors.Is(ev.Err, ErrFingerprintMismatch) {
		t.Fatalf("logged-out cause = %v", ev.Err)
	}
	if got := c.MetricsSnapshot().Counters[MetricFingerprintMismatch]; got != 1 {
		t.Fatalf("mismatch counter = %d", got)
	}

	// Terminal until the next Login: no refresh path may run again.
	if err := c.RequestRefresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("refresh after mismatch logout = %v, want ErrNotAuthenticated", err)
	}
	if got := b.refreshCount(); got != 1 {
		t.Fatalf("refresh calls after logout = %d, want 1", got)
	}
}

func TestRefreshInvalidForcesLogout(t *testing.T) {
	b := newTestBackend(t)
	c := newTestClient(t, b)
	mustLogin(t, c)

	b.setRefreshStatus(401, `{"error":"Unauthorized"}`)

	err := c.RequestRefresh(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if got := c.Status(); got != StatusLoggedOut {
		t.Fatalf("status = %v, want logged_out", got)
	}
	if b.refreshCount() != 1 {
		t.Fatalf("refresh calls = %d, want 1 (no retry on invalid)", b.refreshCount())
	}
}

func TestRefreshPasswordChangeRequired(t *testing.T) {
	b := newTestBackend(t)
	c := newTestClient(t, b, withMetrics)
	mustLogin(t, c)

	b.setRefreshStatus(428, `{"error":"Password change required","username":"ada"}`)

	err := c.RequestRefresh(context.Background())
	var pcr *PasswordChangeRequiredError
	if !errors.As(err, &pcr) {
		t.Fatalf("expected PasswordChangeRequiredError, got %v", err)
	}
	if pcr.Username != "ada" {
		t.Fatalf("username = %q, want ada", pcr.Username)
	}
	if b.refreshCount() != 1 {
		t.Fatalf("refresh calls = %d; a 428 must never be retried", b.refreshCount())
	}
	if got := c.Status(); got != StatusLoggedOut {
		t.Fatalf("status = %v, want logged_out", got)
	}
	if got := c.MetricsSnapshot().Counters[MetricPasswordChangeRequired]; got != 1 {
		t.Fatalf("password-change counter = %d", got)
	}
}

func TestRefreshBackendErrorIsTransient(t *testing.T) {
	b := newTestBackend(t)
	c := newTestClient(t, b)
	mustLogin(t, c)

	b.setRefreshStatus(503, `{"error":"Service unavailable"}`)

	err := c.RequestRefresh(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Status != 503 {
		t.Fatalf("expected 503 status error, got %v", err)
	}
	if got := c.Status(); got != StatusAuthenticated {
		t.Fatalf("status = %v; a 5xx must not end the session", got)
	}
}

func TestRefreshEventsOrdered(t *testing.T) {
	b := newTestBackend(t)
	c := newTestClient(t, b)
	mustLogin(t, c)

	events, cancel := c.Subscribe()
	defer cancel()

	if err := c.RequestRefresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	recvEvent(t, events, EventRefreshStarted)
	ev := recvEvent(t, events, EventRefreshSucceeded)
	if ev.User == nil || ev.User.Username != "ada" {
		t.Fatalf("succeeded event user = %+v", ev.User)
	}
	if ev.At.IsZero() {
		t.Fatal("event timestamp missing")
	}
}

func TestRequestRefreshUnauthenticated(t *testing.T) {
	b := newTestBackend(t)
	c := newTestClient(t, b)

	if err := c.RequestRefresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if b.refreshCount() != 0 {
		t.Fatal("unauthenticated refresh hit the network")
	}
}

func TestRefreshWaiterContextCancel(t *testing.T) {
	b := newTestBackend(t)
	c := newTestClient(t, b)
	mustLogin(t, c)

	release := b.blockRefresh()
	defer release()

	leaderDone := make(chan error, 1)
	go func() { leaderDone <- c.RequestRefresh(context.Background()) }()
	waitUntil(t, 2*time.Second, func() bool { return c.Report().RefreshInFlight })

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() { waiterDone <- c.RequestRefresh(ctx) }()
	waitUntil(t, 2*time.Second, func() bool { return c.Report().QueueDepth == 1 })

	cancel()
	if err := <-waiterDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned waiter got %v", err)
	}

	// The flight is unaffected by the waiter leaving.
	release()
	if err := <-leaderDone; err != nil {
		t.Fatalf("leader failed: %v", err)
	}
	if got := c.Status(); got != StatusAuthenticated {
		t.Fatalf("status = %v", got)
	}
}
