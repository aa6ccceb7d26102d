package sessionkit

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.Backend.BaseURL = "https://api.example.com"
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Backend.UserAgent != "sessionkit/1" {
		t.Fatalf("user agent = %q", cfg.Backend.UserAgent)
	}
	if cfg.Coordinator.MaxPending != 50 {
		t.Fatalf("max pending = %d", cfg.Coordinator.MaxPending)
	}
	if cfg.Coordinator.FlightTimeout != 30*time.Second {
		t.Fatalf("flight timeout = %v", cfg.Coordinator.FlightTimeout)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != 30*time.Second {
		t.Fatalf("retry defaults = %+v", cfg.Retry)
	}
	if cfg.Lifecycle.RefreshInterval != 12*time.Minute {
		t.Fatalf("refresh interval = %v", cfg.Lifecycle.RefreshInterval)
	}
	if cfg.Lifecycle.ActivitySkew != 5*time.Minute {
		t.Fatalf("activity skew = %v", cfg.Lifecycle.ActivitySkew)
	}
	if !cfg.Fingerprint.Enabled {
		t.Fatal("fingerprint disabled by default")
	}
	if cfg.State.Prefix != "sessionkit" {
		t.Fatalf("state prefix = %q", cfg.State.Prefix)
	}
	if cfg.Signals.BufferSize != 16 {
		t.Fatalf("signals buffer = %d", cfg.Signals.BufferSize)
	}
	if cfg.Audit.Enabled {
		t.Fatal("audit enabled by default")
	}
	if cfg.Metrics.Enabled {
		t.Fatal("metrics enabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with base url valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "base url blank invalid",
			mutate: func(c *Config) {
				c.Backend.BaseURL = "   "
			},
			wantValid: false,
		},
		{
			name: "max pending zero valid",
			mutate: func(c *Config) {
				c.Coordinator.MaxPending = 0
			},
			wantValid: true,
		},
		{
			name: "max pending negative invalid",
			mutate: func(c *Config) {
				c.Coordinator.MaxPending = -1
			},
			wantValid: false,
		},
		{
			name: "flight timeout zero invalid",
			mutate: func(c *Config) {
				c.Coordinator.FlightTimeout = 0
			},
			wantValid: false,
		},
		{
			name: "retry attempts zero invalid",
			mutate: func(c *Config) {
				c.Retry.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "retry base delay zero invalid",
			mutate: func(c *Config) {
				c.Retry.BaseDelay = 0
			},
			wantValid: false,
		},
		{
			name: "retry max delay below base invalid",
			mutate: func(c *Config) {
				c.Retry.BaseDelay = 2 * time.Second
				c.Retry.MaxDelay = time.Second
			},
			wantValid: false,
		},
		{
			name: "retry max delay uncapped valid",
			mutate: func(c *Config) {
				c.Retry.MaxDelay = 0
			},
			wantValid: true,
		},
		{
			name: "refresh interval zero invalid",
			mutate: func(c *Config) {
				c.Lifecycle.RefreshInterval = 0
			},
			wantValid: false,
		},
		{
			name: "refresh interval below flight timeout invalid",
			mutate: func(c *Config) {
				c.Coordinator.FlightTimeout = time.Minute
				c.Lifecycle.RefreshInterval = 30 * time.Second
			},
			wantValid: false,
		},
		{
			name: "activity skew negative invalid",
			mutate: func(c *Config) {
				c.Lifecycle.ActivitySkew = -time.Second
			},
			wantValid: false,
		},
		{
			name: "enforcement without skew invalid",
			mutate: func(c *Config) {
				c.Lifecycle.EnforceActivityAnomaly = true
				c.Lifecycle.ActivitySkew = 0
			},
			wantValid: false,
		},
		{
			name: "signals buffer zero invalid",
			mutate: func(c *Config) {
				c.Signals.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit disabled without buffer valid",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIndependentCookieNames(t *testing.T) {
	cfg := validTestConfig()
	cfg.Lifecycle.CookieNames = []string{"sid", "session"}

	clone := cloneConfig(cfg)
	clone.Lifecycle.CookieNames[0] = "mutated"

	if cfg.Lifecycle.CookieNames[0] != "sid" {
		t.Fatal("clone shares the cookie name slice with the original")
	}
}
