// Package transport speaks the cookie-session wire protocol: login, refresh,
// profile, and logout against a single backend origin, plus raw request
// dispatch for application calls that ride the same cookie jar.
//
// Every request carries a generated X-Request-ID so backend logs can be
// joined to client-side audit events. Responses outside the 2xx range decode
// through [DecodeError], which prefers the structured field-level detail a
// validating backend returns over its generic message string.
//
// # What this package must NOT do
//
//   - Coordinate or retry refreshes (the coordinator and Client own that).
//   - Persist anything; cookies live in the injected http.Client jar.
package transport
