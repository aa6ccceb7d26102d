// Package refresh implements the single-flight credential refresh coordinator.
//
// # Single-flight contract
//
// At most one refresh flight is in transit per [Coordinator] at any instant.
// The first caller becomes the flight leader; callers that arrive while a
// flight is in transit join a bounded FIFO queue and receive the leader's
// outcome. Arrivals beyond the queue bound are rejected immediately with
// [ErrQueueFull] rather than buffered (explicit backpressure). Each flight
// races a fixed timeout; when the timer wins, the underlying call is
// cancelled and every caller of that flight receives [ErrFlightTimeout].
//
// # Architecture boundaries
//
// This package owns flight admission, queueing, timeout racing, and outcome
// fan-out. It is policy-free: failure classification, retry backoff, session
// teardown, and event broadcasting belong to the Client and its lifecycle
// manager.
//
// # What this package must NOT do
//
//   - Perform HTTP itself — the flight body is an injected [Func].
//   - Retry, back off, or classify errors.
//   - Hold any state beyond the current flight (no cross-flight memory).
package refresh
