package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/scstanton20/sessionkit"
	"github.com/scstanton20/sessionkit/metrics/export/prometheus"
)

func main() {
	var (
		clients        = flag.Int("clients", 64, "concurrent callers per storm round")
		ops            = flag.Int("ops", 5000, "operations in the steady phase")
		storms         = flag.Int("storms", 20, "revocation storm rounds")
		refreshLatency = flag.Duration("refresh-latency", 25*time.Millisecond, "simulated backend refresh latency")
		queue          = flag.Int("queue", 50, "coordinator waiter queue bound")
		flightTimeout  = flag.Duration("flight-timeout", 5*time.Second, "per-flight refresh timeout")
		redisAddr      = flag.String("redis-addr", "", "redis address for markers; if empty, REDIS_ADDR env or miniredis is used")
		prefix         = flag.String("prefix", "sessionkit-loadtest", "marker key prefix")
		metricsAddr    = flag.String("metrics-addr", "", "serve Prometheus metrics at this address during the run (e.g. :9100)")
	)
	flag.Parse()

	if *clients <= 0 || *ops <= 0 || *storms <= 0 {
		fmt.Fprintln(os.Stderr, "clients, ops, and storms must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     *redis.Client
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("markers on miniredis at %s\n", addr)
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("markers on redis at %s\n", addr)
	}
	defer cleanup()

	backend := newStormBackend(*refreshLatency)
	defer backend.Close()

	cfg := buildConfig(backend.URL(), *queue, *flightTimeout, *prefix)
	client, err := sessionkit.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prometheus.NewPrometheusExporter(client).Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		defer func() { _ = srv.Close() }()
		fmt.Printf("prometheus metrics at http://%s/metrics\n", *metricsAddr)
	}

	if _, err := client.Login(ctx, "loadtest", "loadtest-password"); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	steadyStats := runSteadyPhase(ctx, client, *ops, *clients)
	stormStats := runStormPhase(ctx, client, backend, *storms, *clients)

	report := client.Report()
	fmt.Println("---- results ----")
	printStats("steady", steadyStats)
	printStats("storm", stormStats)
	fmt.Printf("coordinator: flights=%d coalesced=%d rejected=%d\n",
		report.Flights, report.Coalesced, report.Rejected)
	fmt.Printf("backend: logins=%d refreshes=%d profiles=%d\n",
		backend.Logins(), backend.Refreshes(), backend.Profiles())

	if err := client.Logout(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logout failed: %v\n", err)
	}
}

func buildConfig(baseURL string, queue int, flightTimeout time.Duration, prefix string) sessionkit.Config {
	cfg := sessionkit.Config{}
	cfg.Backend.BaseURL = baseURL
	cfg.Backend.UserAgent = "sessionkit-loadtest/1"
	cfg.Coordinator.MaxPending = queue
	cfg.Coordinator.FlightTimeout = flightTimeout
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelay = 50 * time.Millisecond
	cfg.Retry.MaxDelay = time.Second
	// Keep the proactive loop out of the measurement: storms drive every
	// refresh in this harness.
	cfg.Lifecycle.RefreshInterval = time.Hour
	cfg.Lifecycle.ActivitySkew = 5 * time.Minute
	cfg.Fingerprint.Enabled = true
	cfg.State.Prefix = prefix
	cfg.Signals.BufferSize = 64
	return cfg
}

// runSteadyPhase hammers the profile endpoint with a healthy cookie. No
// storm revokes it, so the retry path should stay cold and the numbers
// describe the plain transport hot path.
func runSteadyPhase(ctx context.Context, client *sessionkit.Client, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := client.Get(ctx, "/auth/profile", nil)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runStormPhase revokes the session cookie and immediately releases a
// burst of callers, every one of which discovers the 401 at once. The
// coordinator should collapse each burst into one refresh flight; the
// backend refresh counter afterwards tells whether it did.
func runStormPhase(ctx context.Context, client *sessionkit.Client, backend *stormBackend, storms, concurrency int) phaseStats {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, storms*concurrency)
		mu        sync.Mutex
	)

	start := time.Now()
	for round := 0; round < storms; round++ {
		backend.Revoke()

		var wg sync.WaitGroup
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t0 := time.Now()
				err := client.Get(ctx, "/auth/profile", nil)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}()
		}
		wg.Wait()
	}
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

/*
====================================
IN-PROCESS BACKEND
====================================
*/

// stormBackend fakes the auth backend with revocable generation-stamped
// cookies. Revoke bumps the generation so every outstanding cookie goes
// stale at the same instant; refresh mints a current one after the
// configured latency.
type stormBackend struct {
	srv            *httptest.Server
	refreshLatency time.Duration

	mu         sync.Mutex
	generation int
	loginFP    string

	logins    int64
	refreshes int64
	profiles  int64
}

func newStormBackend(refreshLatency time.Duration) *stormBackend {
	b := &stormBackend{refreshLatency: refreshLatency}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", b.handleLogin)
	mux.HandleFunc("/auth/refresh", b.handleRefresh)
	mux.HandleFunc("/auth/profile", b.handleProfile)
	mux.HandleFunc("/auth/logout", b.handleLogout)
	b.srv = httptest.NewServer(mux)
	return b
}

func (b *stormBackend) URL() string      { return b.srv.URL }
func (b *stormBackend) Close()           { b.srv.Close() }
func (b *stormBackend) Logins() int64    { return atomic.LoadInt64(&b.logins) }
func (b *stormBackend) Refreshes() int64 { return atomic.LoadInt64(&b.refreshes) }
func (b *stormBackend) Profiles() int64  { return atomic.LoadInt64(&b.profiles) }

// Revoke invalidates every cookie issued so far.
func (b *stormBackend) Revoke() {
	b.mu.Lock()
	b.generation++
	b.mu.Unlock()
}

func (b *stormBackend) currentCookie() *http.Cookie {
	b.mu.Lock()
	gen := b.generation
	b.mu.Unlock()
	return &http.Cookie{Name: "sid", Value: "g" + strconv.Itoa(gen), Path: "/"}
}

func (b *stormBackend) cookieCurrent(r *http.Request) bool {
	c, err := r.Cookie("sid")
	if err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.Value == "g"+strconv.Itoa(b.generation)
}

func (b *stormBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&b.logins, 1)
	var body struct {
		Username    string `json:"username"`
		Fingerprint string `json:"sessionFingerprint"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.mu.Lock()
	b.loginFP = body.Fingerprint
	b.mu.Unlock()

	http.SetCookie(w, b.currentCookie())
	writeUser(w, body.Fingerprint, false)
}

func (b *stormBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&b.refreshes, 1)
	if b.refreshLatency > 0 {
		select {
		case <-time.After(b.refreshLatency):
		case <-r.Context().Done():
			return
		}
	}
	b.mu.Lock()
	fp := b.loginFP
	b.mu.Unlock()

	http.SetCookie(w, b.currentCookie())
	writeUser(w, fp, false)
}

func (b *stormBackend) handleProfile(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&b.profiles, 1)
	if !b.cookieCurrent(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"unauthorized","message":"session cookie expired"}`)
		return
	}
	writeUser(w, "", false)
}

func (b *stormBackend) handleLogout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func writeUser(w http.ResponseWriter, fingerprint string, rateLimited bool) {
	resp := map[string]any{
		"user": map[string]string{
			"id":       "u-loadtest",
			"username": "loadtest",
			"name":     "Load Test",
		},
	}
	if fingerprint != "" {
		resp["sessionFingerprint"] = fingerprint
	}
	if rateLimited {
		resp["rateLimited"] = true
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

/*
====================================
STATS
====================================
*/

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
