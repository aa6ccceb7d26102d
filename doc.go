// Package sessionkit keeps a cookie-authenticated backend session alive for
// long-running Go clients: it coordinates credential refreshes through a
// single-flight queue, retries 401 application calls exactly once after a
// refresh, and runs a lifecycle manager that refreshes proactively, backs
// off on failure, and tears the session down when it cannot be saved.
//
// The package is designed for concurrent callers: Client methods are safe to
// call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// sessionkit is the public surface. It exposes [Client], [Builder], [Config],
// and value types (Report, RefreshEvent, MetricsSnapshot, etc.). All internal
// coordination (flight queueing, the wire protocol, marker persistence,
// cookie inspection) lives under internal/ and is never exported directly.
//
// # What this package must NOT do
//
//   - Expose the raw coordinator, transport, or state store types.
//   - Make authorization decisions from unverified cookie claims (cookie
//     inspection only schedules timers).
//   - Retry an application request more than once per call.
package sessionkit
