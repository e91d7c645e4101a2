package config

import "os"

// SentryConfig defines settings for Sentry error monitoring. An empty DSN
// disables reporting.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
	ServerName       string  `json:"server_name"`

	// Tags are attached to every reported event, e.g. depot: north.
	Tags map[string]string `json:"tags"`
}

// SetDefaults takes the environment from APP_ENV when unset.
func (c *SentryConfig) SetDefaults() {
	if c.Environment == "" {
		c.Environment = os.Getenv("APP_ENV")
	}
	if c.ServerName == "" {
		c.ServerName = "haulage"
	}
}
