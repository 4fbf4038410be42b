package config

import "time"

// Config holds runtime settings for the gophdrop CLI.
//
// Fields:
//   - ServerURL: base URL of the gophdrop HTTP API.
//   - HistoryPath: SQLite file holding the upload history and the session.
//   - RequestTimeout: upper bound for metadata calls; transfers are not limited.
type Config struct {
	ServerURL      string
	HistoryPath    string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.HistoryPath = "gophdrop.db"
	c.RequestTimeout = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
