package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Sweep.Enabled {
		if len(cfg.Sweep.Symbols) == 0 {
			return fmt.Errorf("sweep.symbols cannot be empty when sweep is enabled")
		}
		if _, err := time.ParseDuration(cfg.Sweep.Interval); err != nil {
			return fmt.Errorf("sweep.interval %q is not a duration: %w", cfg.Sweep.Interval, err)
		}
	}
	if cfg.Venue.ProxyEnabled && strings.TrimSpace(cfg.Venue.ProxyURL) == "" {
		return fmt.Errorf("venue.proxy_url is required when venue.proxy_enabled is set")
	}
	return nil
}
