package config

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token protects the audit endpoint with "Bearer <token>" when set.
	Token string `json:"token"`
	// MetricsAddr serves Prometheus metrics on a dedicated listener when set.
	MetricsAddr string `json:"metrics_addr"`
	// ShutdownSeconds bounds graceful shutdown.
	ShutdownSeconds int `json:"shutdown_seconds"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ShutdownSeconds <= 0 {
		c.ShutdownSeconds = 5
	}
}
