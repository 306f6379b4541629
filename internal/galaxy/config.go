// Package galaxy is a client for the Galaxy REST API covering the calls the
// prober needs: tool build and show, job submission and state, history
// contents and dataset provenance.
package galaxy

import "time"

// Default client settings.
const (
	DefaultURL               = "https://usegalaxy.eu"
	DefaultTimeout           = 60 * time.Second
	DefaultRequestsPerSecond = 10
	DefaultBurst             = 5
	DefaultReachableInterval = 2 * time.Second
)

// Config holds the client configuration.
type Config struct {
	// URL is the Galaxy server root, without the /api suffix.
	URL string

	// APIKey is sent in the x-api-key header.
	APIKey string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// ReachableInterval is the wait between attempts in WaitReachable.
	ReachableInterval time.Duration
}

// DefaultConfig returns a Config pointing at the public EU server.
func DefaultConfig() Config {
	return Config{
		URL:               DefaultURL,
		Timeout:           DefaultTimeout,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
		ReachableInterval: DefaultReachableInterval,
	}
}

// WithAPIKey returns a copy of the config with the given key.
func (c Config) WithAPIKey(key string) Config {
	c.APIKey = key
	return c
}

// WithURL returns a copy of the config with the given server URL.
func (c Config) WithURL(url string) Config {
	c.URL = url
	return c
}
