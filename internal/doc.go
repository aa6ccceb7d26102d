// Package internal groups the building blocks that are intentionally
// private to sessionkit. The root package composes them; nothing here is
// importable from outside the module.
//
// # Sub-packages
//
//   - cookiewatch: unverified expiry peeks at JWT-shaped session cookies
//     for refresh scheduling
//   - refresh: single-flight refresh coordination with bounded queueing
//   - state: session marker persistence (memory and Redis)
//   - transport: cookie-jar HTTP client, wire models, and error decoding
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessionkit API.
//   - Be imported by any package outside the sessionkit module.
package internal
