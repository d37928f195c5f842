package config

// Config is the process-level configuration. Per-instrument trading
// parameters live in the store, not here.
type Config struct {
	App   AppConfig   `toml:"app"`
	Venue VenueConfig `toml:"venue"`
	Store StoreConfig `toml:"store"`
	Sweep SweepConfig `toml:"sweep"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// VenueConfig describes how to reach the venue REST API. Credentials come
// from the environment, never from the config file.
type VenueConfig struct {
	RESTBaseURL       string  `toml:"rest_base_url"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	ProxyEnabled      bool    `toml:"proxy_enabled"`
	ProxyURL          string  `toml:"proxy_url"`
	QuoteAsset        string  `toml:"quote_asset"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// SweepConfig drives the periodic self-healing reconciler.
type SweepConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval string   `toml:"interval"`
	Symbols  []string `toml:"symbols"`
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9983"
	}
	if c.Venue.TimeoutSeconds <= 0 {
		c.Venue.TimeoutSeconds = 15
	}
	if c.Venue.RequestsPerSecond <= 0 {
		c.Venue.RequestsPerSecond = 5
	}
	if c.Venue.QuoteAsset == "" {
		c.Venue.QuoteAsset = "USDT"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/riptide.db"
	}
	if c.Sweep.Interval == "" {
		c.Sweep.Interval = "1m"
	}
}
