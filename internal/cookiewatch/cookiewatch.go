package cookiewatch

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Lead tuning. A quarter of the credential lifetime is left as headroom,
// bounded so very short and very long lifetimes still produce a sane
// schedule.
const (
	DefaultLeadFraction = 0.25
	MinLead             = 30 * time.Second
)

var (
	// ErrNotJWT means the cookie value does not have the three-segment
	// compact JWT shape.
	ErrNotJWT = errors.New("cookiewatch: cookie is not a JWT")

	// ErrNoExpiry means the token parsed but carries no exp claim.
	ErrNoExpiry = errors.New("cookiewatch: token has no exp claim")
)

// Window is the observed validity span of a credential.
type Window struct {
	IssuedAt  time.Time // zero when the token has no iat claim
	ExpiresAt time.Time
}

// Lifetime reports the span between issue and expiry, zero when unknown.
func (w Window) Lifetime() time.Duration {
	if w.IssuedAt.IsZero() || !w.ExpiresAt.After(w.IssuedAt) {
		return 0
	}
	return w.ExpiresAt.Sub(w.IssuedAt)
}

// RefreshAt reports when a proactive refresh should fire: fraction of the
// lifetime before expiry, never later than expiry minus MinLead, never
// earlier than halfway through the lifetime. With an unknown issue time the
// schedule is expiry minus MinLead.
func (w Window) RefreshAt(fraction float64) time.Time {
	if w.ExpiresAt.IsZero() {
		return time.Time{}
	}
	if fraction <= 0 || fraction >= 1 {
		fraction = DefaultLeadFraction
	}
	lifetime := w.Lifetime()
	if lifetime <= 0 {
		return w.ExpiresAt.Add(-MinLead)
	}
	lead := time.Duration(float64(lifetime) * fraction)
	if lead < MinLead {
		lead = MinLead
	}
	if lead > lifetime/2 {
		lead = lifetime / 2
	}
	return w.ExpiresAt.Add(-lead)
}

// Peek parses raw as an unverified compact JWT and extracts its validity
// window. The signature is never checked.
func Peek(raw string) (Window, error) {
	if !looksLikeJWT(raw) {
		return Window{}, ErrNotJWT
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return Window{}, ErrNotJWT
	}
	if claims.ExpiresAt == nil {
		return Window{}, ErrNoExpiry
	}
	w := Window{ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		w.IssuedAt = claims.IssuedAt.Time
	}
	return w, nil
}

// FromJar scans the cookies jar holds for origin and returns the validity
// window of the first cookie that parses as a JWT with an expiry. names, if
// non-empty, restricts the scan to those cookie names.
func FromJar(jar http.CookieJar, origin *url.URL, names ...string) (Window, bool) {
	if jar == nil || origin == nil {
		return Window{}, false
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	for _, c := range jar.Cookies(origin) {
		if len(wanted) > 0 && !wanted[c.Name] {
			continue
		}
		w, err := Peek(c.Value)
		if err != nil {
			continue
		}
		return w, true
	}
	return Window{}, false
}

func looksLikeJWT(v string) bool {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return false
	}
	return parts[0] != "" && parts[1] != ""
}
