package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Backend endpoint paths, relative to the configured origin.
const (
	PathLogin   = "/auth/login"
	PathRefresh = "/auth/refresh"
	PathProfile = "/auth/profile"
	PathLogout  = "/auth/logout"
)

const defaultUserAgent = "sessionkit/1"

// Config describes the backend origin and how to reach it.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://api.example.com".
	BaseURL string

	// HTTPClient carries the session cookies. When nil, a client with a
	// fresh in-memory cookie jar is built. A caller-supplied client
	// without a jar is shallow-copied and given one, since the protocol
	// cannot work without cookie storage.
	HTTPClient *http.Client

	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// API issues wire calls against one backend origin.
type API struct {
	base      *url.URL
	hc        *http.Client
	userAgent string
}

// New validates cfg and builds an API.
func New(cfg Config) (*API, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("transport: BaseURL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid BaseURL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.New("transport: BaseURL must be http or https")
	}
	if base.Host == "" {
		return nil, errors.New("transport: BaseURL must include a host")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Jar == nil {
		jar, jarErr := cookiejar.New(nil)
		if jarErr != nil {
			return nil, fmt.Errorf("transport: cookie jar: %w", jarErr)
		}
		clone := *hc
		clone.Jar = jar
		hc = &clone
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &API{base: base, hc: hc, userAgent: ua}, nil
}

// BaseURL reports the configured backend origin.
func (a *API) BaseURL() string {
	if a == nil {
		return ""
	}
	return a.base.String()
}

// Origin returns a copy of the backend origin URL.
func (a *API) Origin() *url.URL {
	if a == nil {
		return nil
	}
	u := *a.base
	return &u
}

// Jar exposes the cookie jar carrying the session, for read-only
// inspection.
func (a *API) Jar() http.CookieJar {
	if a == nil {
		return nil
	}
	return a.hc.Jar
}

// NewRequest builds a JSON request against path (which must start with "/").
// The request carries a generated X-Request-ID and, when body is non-nil,
// a replayable JSON body so the caller can retry it after a refresh.
func (a *API) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if a == nil {
		return nil, errors.New("transport: nil API")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid path %q: %w", path, err)
	}
	target := a.base.ResolveReference(ref).String()

	var reader io.Reader
	if body != nil {
		payload, mErr := json.Marshal(body)
		if mErr != nil {
			return nil, fmt.Errorf("transport: encode body: %w", mErr)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	a.prepare(req)
	return req, nil
}

// Do dispatches req through the shared cookie jar, stamping the standard
// headers if the caller built the request by hand.
func (a *API) Do(req *http.Request) (*http.Response, error) {
	if a == nil {
		return nil, errors.New("transport: nil API")
	}
	a.prepare(req)
	return a.hc.Do(req)
}

func (a *API) prepare(req *http.Request) {
	if req.Header.Get("X-Request-ID") == "" {
		id := RequestIDFrom(req.Context())
		if id == "" {
			id = uuid.NewString()
		}
		req.Header.Set("X-Request-ID", id)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

// Login exchanges credentials for a cookie session and returns the session
// payload. fingerprint, when non-empty, is offered to the backend as the
// digest to bind the session to.
func (a *API) Login(ctx context.Context, username, password, fingerprint string) (*Session, error) {
	req, err := a.NewRequest(ctx, http.MethodPost, PathLogin, loginRequest{
		Username:    username,
		Password:    password,
		Fingerprint: fingerprint,
	})
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := a.roundTrip(req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Refresh asks the backend to rotate the session cookie. A 401 here means
// the refresh credential itself is dead and maps to ErrRefreshInvalid; a
// 428 maps to PasswordChangeRequiredError.
func (a *API) Refresh(ctx context.Context) (*Session, error) {
	req, err := a.NewRequest(ctx, http.MethodPost, PathRefresh, nil)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := a.roundTrip(req, &sess); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
		}
		return nil, err
	}
	return &sess, nil
}

// Profile reads the authenticated account. A 401 means the access cookie
// has lapsed; callers normally refresh and retry.
func (a *API) Profile(ctx context.Context) (*User, error) {
	req, err := a.NewRequest(ctx, http.MethodGet, PathProfile, nil)
	if err != nil {
		return nil, err
	}
	var body profileResponse
	if err := a.roundTrip(req, &body); err != nil {
		return nil, err
	}
	return &body.User, nil
}

// Logout invalidates the backend session. Callers clear local state even
// when this fails; the error is advisory.
func (a *API) Logout(ctx context.Context) error {
	req, err := a.NewRequest(ctx, http.MethodPost, PathLogout, nil)
	if err != nil {
		return err
	}
	return a.roundTrip(req, nil)
}

// roundTrip sends req, classifies non-2xx responses, and decodes a 2xx body
// into out when out is non-nil.
func (a *API) roundTrip(req *http.Request, out any) error {
	resp, err := a.hc.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DecodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, errorBodyLimit)).Decode(out); err != nil {
		return fmt.Errorf("transport: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
