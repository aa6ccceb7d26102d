// Package cookiewatch peeks at JWT-shaped session cookies to learn when the
// access credential expires, so the proactive refresh timer can track the
// real expiry instead of a fixed guess.
//
// The peek is deliberately unverified: the client holds no signing keys and
// never makes an authorization decision from these claims. A cookie that is
// opaque, malformed, or missing an exp claim simply yields no schedule and
// the caller falls back to its fixed interval.
package cookiewatch
