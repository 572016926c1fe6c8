// File path: internal/data/orchestrator/config.go
package orchestrator

import (
	"github.com/linkforge/linkforge/internal/linkcheck"
	"github.com/linkforge/linkforge/internal/sqlite"
	"github.com/linkforge/linkforge/internal/vector"
)

// Config aggregates the backend configurations. Each section loads from its
// own file/env pair so deployments can tune one backend without touching the
// others.
type Config struct {
	SQLite    sqlite.Config    `json:"sqlite"`
	Vector    vector.Config    `json:"vector"`
	LinkCheck linkcheck.Config `json:"linkcheck"`
}

// LoadConfig assembles the backend configs from the environment.
func LoadConfig() (Config, error) {
	sqliteCfg, err := sqlite.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	vectorCfg, err := vector.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	linkcheckCfg, err := linkcheck.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	return Config{SQLite: sqliteCfg, Vector: vectorCfg, LinkCheck: linkcheckCfg}, nil
}
