// File path: internal/generation/manager.go
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/linkforge/linkforge/internal/anchor"
	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/embedding"
	"github.com/linkforge/linkforge/internal/linkcheck"
	"github.com/linkforge/linkforge/internal/progress"
	"github.com/linkforge/linkforge/internal/sqlite"
	"github.com/linkforge/linkforge/internal/vector"
)

// ErrRunNotRunning is returned when stopping a run that has no live worker.
var ErrRunNotRunning = errors.New("run is not running")

const staleRunMessage = "orphaned by restart"

// Manager owns generation runs: one background goroutine per run, a session
// registry for cancellation, and the sqlite run record as the single source
// of truth for status.
type Manager struct {
	store      *sqlite.Store
	embeddings *embedding.Store
	resolver   anchor.Resolver
	checker    *linkcheck.Checker
	index      *vector.Client
	broker     *progress.Broker
	donorLimit int

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	runID     string
	projectID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// Options carries the optional collaborators of a Manager.
type Options struct {
	Checker     *linkcheck.Checker
	VectorIndex *vector.Client
	DonorLimit  int
}

const defaultDonorLimit = 4

func NewManager(store *sqlite.Store, embeddings *embedding.Store, resolver anchor.Resolver, broker *progress.Broker, opts Options) *Manager {
	limit := opts.DonorLimit
	if limit <= 0 {
		limit = defaultDonorLimit
	}
	return &Manager{
		store:      store,
		embeddings: embeddings,
		resolver:   resolver,
		checker:    opts.Checker,
		index:      opts.VectorIndex,
		broker:     broker,
		donorLimit: limit,
		sessions:   make(map[string]*session),
	}
}

// Broker exposes the progress broker for the streaming handler.
func (m *Manager) Broker() *progress.Broker { return m.broker }

// Start validates the request, fails fast when the project has no completed
// import, persists the run record and launches the background worker. The
// returned run identifier is immediately queryable.
func (m *Manager) Start(ctx context.Context, req Request) (string, error) {
	if m == nil || m.store == nil {
		return "", errors.New("generation manager not initialised")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}
	imp, err := m.store.LatestCompletedImport(ctx, req.ProjectID)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	if err := m.store.CreateRun(ctx, sqlite.Run{
		ID:        runID,
		ProjectID: req.ProjectID,
		Status:    sqlite.RunRunning,
		Phase:     phaseLoading,
	}); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		runID:     runID,
		projectID: req.ProjectID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.sessions[runID] = sess
	m.mu.Unlock()

	worker := newRunner(m, runID, req, imp.ID)
	go func() {
		defer close(sess.done)
		defer m.release(runID)
		worker.run(runCtx)
	}()

	common.Logger().Info("generation: run started",
		"run", runID, "project", req.ProjectID, "import", imp.ID, "scenarios", req.EnabledScenarios())
	return runID, nil
}

// Stop cancels a live run. The worker observes the cancellation between
// phases and records the canceled status itself; Stop returns once the
// signal is delivered, not once the run is finished.
func (m *Manager) Stop(ctx context.Context, runID string) error {
	runID = strings.TrimSpace(runID)
	m.mu.Lock()
	sess, ok := m.sessions[runID]
	m.mu.Unlock()
	if ok {
		sess.cancel()
		return nil
	}
	// No live worker: distinguish unknown runs from finished ones.
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status == sqlite.RunRunning {
		// Persisted running with no worker: an orphan, fail it now.
		if err := m.store.FinishRun(ctx, runID, sqlite.RunFailed, staleRunMessage); err != nil {
			return err
		}
		return nil
	}
	return ErrRunNotRunning
}

// Status returns the persisted run snapshot.
func (m *Manager) Status(ctx context.Context, runID string) (*sqlite.Run, error) {
	if m == nil || m.store == nil {
		return nil, errors.New("generation manager not initialised")
	}
	return m.store.GetRun(ctx, strings.TrimSpace(runID))
}

// Wait blocks until a run's worker goroutine exits. Used by tests and
// graceful shutdown.
func (m *Manager) Wait(runID string) {
	m.mu.Lock()
	sess, ok := m.sessions[runID]
	m.mu.Unlock()
	if ok {
		<-sess.done
	}
}

// RecoverStaleRuns fails every persisted running run at startup. With no
// in-memory session registry surviving a restart, any running row is an
// orphan by definition.
func (m *Manager) RecoverStaleRuns(ctx context.Context) (int64, error) {
	count, err := m.store.FailStaleRuns(ctx, staleRunMessage)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		common.Logger().Warn("generation: stale runs failed at startup", "count", count)
	}
	return count, nil
}

// Shutdown cancels every live run and waits for the workers to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()
	for _, sess := range sessions {
		sess.cancel()
	}
	for _, sess := range sessions {
		<-sess.done
	}
}

func (m *Manager) release(runID string) {
	m.mu.Lock()
	delete(m.sessions, runID)
	m.mu.Unlock()
}
