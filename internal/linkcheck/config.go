// File path: internal/linkcheck/config.go
package linkcheck

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Enabled bool `json:"enabled"`

	Timeout       time.Duration `json:"-"`
	TimeoutString string        `json:"timeout"`

	Concurrency int `json:"concurrency"`

	MaxIdleConns        int `json:"max_idle_conns"`
	MaxIdleConnsPerHost int `json:"max_idle_conns_per_host"`
}

func (c Config) Merge(override Config) Config {
	result := c
	if override.Enabled {
		result.Enabled = true
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	if strings.TrimSpace(override.TimeoutString) != "" {
		result.TimeoutString = strings.TrimSpace(override.TimeoutString)
	}
	if override.Concurrency > 0 {
		result.Concurrency = override.Concurrency
	}
	if override.MaxIdleConns > 0 {
		result.MaxIdleConns = override.MaxIdleConns
	}
	if override.MaxIdleConnsPerHost > 0 {
		result.MaxIdleConnsPerHost = override.MaxIdleConnsPerHost
	}
	return result
}

func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("LINKCHECK_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadConfigEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		if c.TimeoutString != "" {
			if parsed, err := time.ParseDuration(c.TimeoutString); err == nil {
				c.Timeout = parsed
			}
		}
		if c.Timeout <= 0 {
			c.Timeout = 10 * time.Second
		}
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 32
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 16
	}
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read linkcheck config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse linkcheck config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() (Config, error) {
	cfg := Config{}
	if enabled := strings.TrimSpace(os.Getenv("LINKCHECK_ENABLED")); enabled != "" {
		value, err := strconv.ParseBool(enabled)
		if err != nil {
			return Config{}, fmt.Errorf("parse LINKCHECK_ENABLED: %w", err)
		}
		cfg.Enabled = value
	}
	if timeout := strings.TrimSpace(os.Getenv("LINKCHECK_TIMEOUT")); timeout != "" {
		cfg.TimeoutString = timeout
		if parsed, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = parsed
		}
	}
	if concurrency := strings.TrimSpace(os.Getenv("LINKCHECK_CONCURRENCY")); concurrency != "" {
		value, err := strconv.Atoi(concurrency)
		if err != nil {
			return Config{}, fmt.Errorf("parse LINKCHECK_CONCURRENCY: %w", err)
		}
		if value > 0 {
			cfg.Concurrency = value
		}
	}
	return cfg, nil
}
