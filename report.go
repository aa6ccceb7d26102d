package sessionkit

import "time"

// Report is a point-in-time diagnostic snapshot of a Client: session
// state, coordinator pressure, and the knobs that shape refresh
// behavior. It is safe to log.
type Report struct {
	Status          Status
	Username        string
	InstanceID      string
	LastRefresh     time.Time
	LastActivity    time.Time
	LastRateLimited bool

	RefreshInFlight bool
	QueueDepth      int
	Flights         uint64
	Coalesced       uint64
	Rejected        uint64

	RefreshInterval    time.Duration
	FlightTimeout      time.Duration
	MaxPending         int
	RetryMaxAttempts   int
	CookieWatchActive  bool
	FingerprintActive  bool
	AnomalyEnforcement bool

	AuditDropped   uint64
	SignalsDropped uint64
}

// Report assembles the current diagnostic snapshot.
func (c *Client) Report() Report {
	if c == nil || !c.ready {
		return Report{}
	}

	c.mu.Lock()
	r := Report{
		Status:          c.status,
		LastRefresh:     c.lastRefresh,
		LastActivity:    c.lastActivity,
		LastRateLimited: c.lastRateLimited,
	}
	if c.user != nil {
		r.Username = c.user.Username
	}
	c.mu.Unlock()

	stats := c.coord.Stats()
	r.InstanceID = c.fingerprint.InstanceID
	r.RefreshInFlight = c.coord.InFlight()
	r.QueueDepth = c.coord.QueueLen()
	r.Flights = stats.Flights
	r.Coalesced = stats.Coalesced
	r.Rejected = stats.Rejected

	r.RefreshInterval = c.config.Lifecycle.RefreshInterval
	r.FlightTimeout = c.config.Coordinator.FlightTimeout
	r.MaxPending = c.config.Coordinator.MaxPending
	r.RetryMaxAttempts = c.config.Retry.MaxAttempts
	r.CookieWatchActive = c.config.Lifecycle.WatchCookies
	r.FingerprintActive = c.config.Fingerprint.Enabled
	r.AnomalyEnforcement = c.config.Lifecycle.EnforceActivityAnomaly

	r.AuditDropped = c.AuditDropped()
	r.SignalsDropped = c.SignalsDropped()
	return r
}
