// File path: internal/vector/config.go
package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	BaseURL string `json:"base_url"`

	Timeout       time.Duration `json:"-"`
	TimeoutString string        `json:"timeout"`

	CollectionPrefix string `json:"collection_prefix"`
}

// Enabled reports whether a vector index endpoint is configured at all.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}

func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.BaseURL) != "" {
		result.BaseURL = strings.TrimSpace(override.BaseURL)
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	if strings.TrimSpace(override.TimeoutString) != "" {
		result.TimeoutString = strings.TrimSpace(override.TimeoutString)
	}
	if strings.TrimSpace(override.CollectionPrefix) != "" {
		result.CollectionPrefix = strings.TrimSpace(override.CollectionPrefix)
	}
	return result
}

func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("VECTOR_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	cfg = cfg.Merge(loadConfigEnv())
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
			c.Timeout = 15 * time.Second
		}
	}
	if c.CollectionPrefix == "" {
		c.CollectionPrefix = "linkforge"
	}
	c.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read vector config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse vector config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() Config {
	cfg := Config{}
	if url := strings.TrimSpace(os.Getenv("VECTOR_INDEX_URL")); url != "" {
		cfg.BaseURL = url
	}
	if timeout := strings.TrimSpace(os.Getenv("VECTOR_INDEX_TIMEOUT")); timeout != "" {
		cfg.TimeoutString = timeout
		if parsed, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = parsed
		}
	}
	if prefix := strings.TrimSpace(os.Getenv("VECTOR_COLLECTION_PREFIX")); prefix != "" {
		cfg.CollectionPrefix = prefix
	}
	return cfg
}
