package internaldefs

import (
	"github.com/scstanton20/sessionkit"
)

// CounterDef defines a public type used by sessionkit APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by sessionkit APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the session client.
var CounterDefs = []CounterDef{
	{ID: sessionkit.MetricLoginSuccess, Name: "sessionkit_login_success_total", Help: "Successful logins."},
	{ID: sessionkit.MetricLoginFailure, Name: "sessionkit_login_failure_total", Help: "Failed login attempts."},
	{ID: sessionkit.MetricRefreshSuccess, Name: "sessionkit_refresh_success_total", Help: "Successful refresh flights."},
	{ID: sessionkit.MetricRefreshFailure, Name: "sessionkit_refresh_failure_total", Help: "Failed refresh flights."},
	{ID: sessionkit.MetricRefreshTimeout, Name: "sessionkit_refresh_timeout_total", Help: "Refresh flights that outlived their timeout."},
	{ID: sessionkit.MetricRefreshCoalesced, Name: "sessionkit_refresh_coalesced_total", Help: "Callers served by another caller's refresh flight."},
	{ID: sessionkit.MetricRefreshRejected, Name: "sessionkit_refresh_rejected_total", Help: "Callers rejected at the refresh queue bound."},
	{ID: sessionkit.MetricRefreshRateLimited, Name: "sessionkit_refresh_rate_limited_total", Help: "Refreshes that succeeded inside the backend cooldown."},
	{ID: sessionkit.MetricUnauthorizedRetry, Name: "sessionkit_unauthorized_retry_total", Help: "401 responses that triggered a refresh-and-retry."},
	{ID: sessionkit.MetricRetryExhausted, Name: "sessionkit_retry_exhausted_total", Help: "Proactive refresh chains that spent their whole backoff budget."},
	{ID: sessionkit.MetricPasswordChangeRequired, Name: "sessionkit_password_change_required_total", Help: "Refreshes refused pending a password change."},
	{ID: sessionkit.MetricFingerprintMismatch, Name: "sessionkit_fingerprint_mismatch_total", Help: "Refreshes whose fingerprint echo did not match."},
	{ID: sessionkit.MetricActivityAnomaly, Name: "sessionkit_activity_anomaly_total", Help: "Activity markers observed ahead of the local clock."},
	{ID: sessionkit.MetricProactiveRefresh, Name: "sessionkit_proactive_refresh_total", Help: "Refresh chains started by the lifecycle timer."},
	{ID: sessionkit.MetricVisibilityRefresh, Name: "sessionkit_visibility_refresh_total", Help: "Refresh chains started by a visibility regain."},
	{ID: sessionkit.MetricSessionAdopted, Name: "sessionkit_session_adopted_total", Help: "Sessions resumed or adopted without a login."},
	{ID: sessionkit.MetricLogout, Name: "sessionkit_logout_total", Help: "Sessions ended, voluntary and forced."},
}

// HistogramDefs is an exported constant or variable used by the session client.
var HistogramDefs = []HistogramDef{
	{ID: sessionkit.MetricRefreshLatency, Name: "sessionkit_refresh_latency_seconds", Help: "Refresh flight latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the session client.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the session client.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed bucket count.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets folds per-bucket counts into the cumulative form both exposition formats expect.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
