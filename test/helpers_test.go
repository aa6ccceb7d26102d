//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/scstanton20/sessionkit"
)

// authBackend fakes the auth API through the public surface only. Login
// issues a refresh credential cookie plus a generation-stamped session
// cookie; Revoke invalidates every session cookie at once while the
// refresh credential stays valid, so /auth/refresh can heal callers the
// way a real backend would.
type authBackend struct {
	srv *httptest.Server

	mu          sync.Mutex
	issueSeq    int
	lastSession string        // the only session cookie value accepted
	jwtTTL      time.Duration // when set, session cookies are HS256 JWTs
	refreshGate chan struct{} // when set, refresh blocks until closed

	logins    int
	refreshes int
	profiles  int
	logouts   int
}

const refreshCredential = "rt-integration"

func newAuthBackend(t *testing.T) *authBackend {
	t.Helper()
	b := &authBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", b.handleLogin)
	mux.HandleFunc("/auth/refresh", b.handleRefresh)
	mux.HandleFunc("/auth/profile", b.handleProfile)
	mux.HandleFunc("/auth/logout", b.handleLogout)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *authBackend) url() string { return b.srv.URL }

func (b *authBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshes
}

func (b *authBackend) profileCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profiles
}

func (b *authBackend) logoutCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logouts
}

// revoke invalidates every issued session cookie. The refresh credential
// stays valid, so the next refresh heals the session.
func (b *authBackend) revoke() {
	b.mu.Lock()
	b.lastSession = ""
	b.mu.Unlock()
}

// gateRefresh holds every refresh flight open until the returned release
// function runs, so tests can pile callers onto one flight.
func (b *authBackend) gateRefresh() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.refreshGate = nil
			b.mu.Unlock()
			close(gate)
		})
	}
}

// setJWTCookies switches issued session cookies to HS256 JWTs with the
// given lifetime, which lets cookie watching observe a real expiry.
func (b *authBackend) setJWTCookies(ttl time.Duration) {
	b.mu.Lock()
	b.jwtTTL = ttl
	b.mu.Unlock()
}

func (b *authBackend) issueSessionCookie(w http.ResponseWriter) {
	b.mu.Lock()
	b.issueSeq++
	value := "g" + strconv.Itoa(b.issueSeq)
	if b.jwtTTL > 0 {
		value = mintSessionJWT(time.Now(), time.Now().Add(b.jwtTTL))
	}
	b.lastSession = value
	b.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "sid", Value: value, Path: "/"})
}

func (b *authBackend) sessionValid(r *http.Request) bool {
	c, err := r.Cookie("sid")
	if err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSession != "" && c.Value == b.lastSession
}

func (b *authBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.logins++
	b.mu.Unlock()

	var body struct {
		Username    string `json:"username"`
		Fingerprint string `json:"sessionFingerprint"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	http.SetCookie(w, &http.Cookie{Name: "rt", Value: refreshCredential, Path: "/"})
	b.issueSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":               integUser(),
		"sessionFingerprint": body.Fingerprint,
	})
}

func (b *authBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.refreshes++
	gate := b.refreshGate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if c, err := r.Cookie("rt"); err != nil || c.Value != refreshCredential {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "refresh credential rejected",
		})
		return
	}

	b.issueSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"user": integUser()})
}

func (b *authBackend) handleProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.profiles++
	b.mu.Unlock()

	if !b.sessionValid(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "session cookie expired",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": integUser()})
}

func (b *authBackend) handleLogout(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	b.logouts++
	b.lastSession = ""
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func integUser() map[string]string {
	return map[string]string{"id": "u-1", "username": "ada", "name": "Ada Lovelace"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mintSessionJWT signs a throwaway HS256 token; only its claims matter,
// the client never verifies the signature.
func mintSessionJWT(iat, exp time.Time) string {
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("integration-secret"))
	if err != nil {
		panic(err)
	}
	return signed
}

/*
====================================
CLIENT + STORE HELPERS
====================================
*/

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func integrationConfig(baseURL string) sessionkit.Config {
	cfg := sessionkit.DefaultConfig()
	cfg.Backend.BaseURL = baseURL
	cfg.Coordinator.MaxPending = 50
	cfg.Coordinator.FlightTimeout = 10 * time.Second
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.BaseDelay = 20 * time.Millisecond
	cfg.Retry.MaxDelay = 100 * time.Millisecond
	// Idle by default; tests that want the proactive loop shorten this.
	cfg.Lifecycle.RefreshInterval = time.Hour
	return cfg
}

func buildClient(t *testing.T, b *authBackend, mutate ...func(*sessionkit.Config)) *sessionkit.Client {
	t.Helper()
	cfg := integrationConfig(b.url())
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := sessionkit.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func buildRedisClient(t *testing.T, b *authBackend, rdb *redis.Client, mutate ...func(*sessionkit.Config)) *sessionkit.Client {
	t.Helper()
	cfg := integrationConfig(b.url())
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := sessionkit.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func login(t *testing.T, c *sessionkit.Client) *sessionkit.User {
	t.Helper()
	user, err := c.Login(context.Background(), "ada", "lovelace-1815")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return user
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
