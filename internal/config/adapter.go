package config

import (
	"golang.org/x/time/rate"

	"github.com/wayneeseguin/convergent/pkg/control"
	"github.com/wayneeseguin/convergent/pkg/transport"
)

// ToTransportConfig converts the unified Config to a transport.Config ready
// for transport.Connect.
func (c *Config) ToTransportConfig() transport.Config {
	t := transport.DefaultConfig(c.Transport.NATSURL)

	if c.Transport.TLS.CertFile != "" || c.Transport.TLS.KeyFile != "" || c.Transport.TLS.CAFile != "" {
		t.TLS = true
		t.CertFile = c.Transport.TLS.CertFile
		t.KeyFile = c.Transport.TLS.KeyFile
		t.CAFile = c.Transport.TLS.CAFile
		t.InsecureSkipVerify = c.Transport.TLS.SkipVerify
	}

	return t
}

// ToControlConfig converts the unified Config to a control.Config for the
// controller's broadcast service.
func (c *Config) ToControlConfig() control.Config {
	cfg := control.DefaultConfig()
	cfg.BatchingDelay = c.Broadcast.BatchingDelay
	cfg.SendTimeout = c.Transport.SendTimeout
	cfg.TrackerCapacity = c.Broadcast.TrackerCapacity
	cfg.FragmentRate = rate.Limit(c.Broadcast.FragmentRate)
	cfg.FragmentBurst = c.Broadcast.FragmentBurst
	return cfg
}

// GetFeature returns whether a feature is enabled.
func (c *Config) GetFeature(name string) bool {
	if c.Features == nil {
		return false
	}
	return c.Features[name]
}

// SetFeature sets a feature flag.
func (c *Config) SetFeature(name string, enabled bool) {
	if c.Features == nil {
		c.Features = make(map[string]bool)
	}
	c.Features[name] = enabled
}
