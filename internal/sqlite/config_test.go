// File path: internal/sqlite/config_test.go
package sqlite

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CATALOG_CONFIG_FILE", "")
	t.Setenv("CATALOG_PATH", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Path != "data/linkforge.db" {
		t.Fatalf("unexpected default path %q", cfg.Path)
	}
	if cfg.MaxOpenConns != 8 || cfg.MaxIdleConns != 8 {
		t.Fatalf("unexpected pool defaults: open=%d idle=%d", cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
	if cfg.BusyTimeout != 5*time.Second {
		t.Fatalf("unexpected busy timeout %v", cfg.BusyTimeout)
	}
}

func TestLoadConfigReadsCatalogEnv(t *testing.T) {
	t.Setenv("CATALOG_PATH", "/tmp/other-catalog.db")
	t.Setenv("CATALOG_MAX_OPEN_CONNS", "4")
	t.Setenv("CATALOG_BUSY_TIMEOUT", "250ms")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Path != "/tmp/other-catalog.db" {
		t.Fatalf("env path not applied: %q", cfg.Path)
	}
	if cfg.MaxOpenConns != 4 {
		t.Fatalf("env pool size not applied: %d", cfg.MaxOpenConns)
	}
	if cfg.BusyTimeout != 250*time.Millisecond {
		t.Fatalf("env busy timeout not applied: %v", cfg.BusyTimeout)
	}
}

func TestLoadConfigRejectsBadPoolSize(t *testing.T) {
	t.Setenv("CATALOG_MAX_OPEN_CONNS", "many")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for non-numeric pool size")
	}
}
