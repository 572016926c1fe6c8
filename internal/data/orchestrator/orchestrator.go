// File path: internal/data/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"fmt"

	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/linkcheck"
	"github.com/linkforge/linkforge/internal/sqlite"
	"github.com/linkforge/linkforge/internal/vector"
)

// Orchestrator opens and owns the storage backends: the sqlite catalog is
// required, the vector index and the link checker attach when their
// environment enables them.
type Orchestrator struct {
	store   *sqlite.Store
	index   *vector.Client
	checker *linkcheck.Checker
}

// New opens the backends in dependency order. A missing optional backend is
// logged and skipped, never fatal.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	store, err := sqlite.OpenWithConfig(cfg.SQLite)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	o := &Orchestrator{store: store}

	if cfg.Vector.Enabled() {
		index, err := vector.NewClient(cfg.Vector)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("vector index: %w", err)
		}
		if err := index.Ping(ctx); err != nil {
			common.Logger().Warn("orchestrator: vector index unreachable, continuing without it", "error", err)
		} else {
			o.index = index
			common.Logger().Info("orchestrator: vector index attached", "url", cfg.Vector.BaseURL)
		}
	}

	if cfg.LinkCheck.Enabled {
		o.checker = linkcheck.NewChecker(cfg.LinkCheck)
		common.Logger().Info("orchestrator: link checker enabled",
			"timeout", cfg.LinkCheck.Timeout, "concurrency", cfg.LinkCheck.Concurrency)
	}
	return o, nil
}

// Store returns the sqlite catalog.
func (o *Orchestrator) Store() *sqlite.Store { return o.store }

// VectorIndex returns the vector index client or nil when not attached.
func (o *Orchestrator) VectorIndex() *vector.Client { return o.index }

// Checker returns the link checker or nil when disabled.
func (o *Orchestrator) Checker() *linkcheck.Checker { return o.checker }

// Close shuts the backends down in reverse order of acquisition.
func (o *Orchestrator) Close() error {
	if o == nil {
		return nil
	}
	// checker and index hold no resources beyond pooled connections
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}
