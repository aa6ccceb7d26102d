package sessionkit

import "time"

/*
====================================
CONFIG PRESETS
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig returns the baseline configuration with every knob at its
// documented default. Backend.BaseURL must still be set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

// HighSecurityConfig describes the highsecurityconfig operation and its observable behavior.
//
// HighSecurityConfig hardens the baseline: anomaly detection enforces instead
// of advising, audit events are buffered losslessly, the proactive cadence
// tightens, and the real cookie expiry drives the schedule when observable.
// The refresh queue shrinks so pressure surfaces early.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Coordinator.MaxPending = 25
	cfg.Coordinator.FlightTimeout = 15 * time.Second
	cfg.Retry.MaxAttempts = 2
	cfg.Lifecycle.RefreshInterval = 5 * time.Minute
	cfg.Lifecycle.WatchCookies = true
	cfg.Lifecycle.EnforceActivityAnomaly = true
	cfg.Lifecycle.ActivitySkew = 2 * time.Minute
	cfg.Fingerprint.Enabled = true
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 4096
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	return cfg
}

// HighThroughputConfig describes the highthroughputconfig operation and its observable behavior.
//
// HighThroughputConfig tunes the client for many concurrent callers sharing
// one session: a deep waiter queue so 401 storms coalesce instead of
// rejecting, gentler backoff, and metrics on so the coalescing ratio is
// observable.
func HighThroughputConfig() Config {
	cfg := defaultConfig()
	cfg.Coordinator.MaxPending = 500
	cfg.Retry.BaseDelay = 500 * time.Millisecond
	cfg.Retry.MaxDelay = 10 * time.Second
	cfg.Lifecycle.RefreshInterval = 10 * time.Minute
	cfg.Signals.BufferSize = 64
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}
