// File path: internal/sqlite/runs.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRunNotFound is returned when a run identifier is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunPublished = "published"
	RunFailed    = "failed"
	RunCanceled  = "canceled"
)

// CreateRun persists a freshly started generation run.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, project_id, status, phase, percent, generated, rejected, error_message, started_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, run.Status, run.Phase, run.Percent,
		run.Generated, run.Rejected, run.ErrorMessage, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunProgress writes the current phase, percent and counters. Percent
// never moves backwards in storage even if a caller reports a smaller value.
func (s *Store) UpdateRunProgress(ctx context.Context, runID, phase string, percent, generated, rejected int) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET phase = ?, percent = MAX(percent, ?), generated = ?, rejected = ? WHERE id = ?`,
		phase, percent, generated, rejected, runID)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status, errorMessage string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	percent := 0
	if status == RunPublished {
		percent = 100
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, percent = MAX(percent, ?), finished_at = ? WHERE id = ?`,
		status, errorMessage, percent, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun loads a run by identifier.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	var run Run
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = ?`, strings.TrimSpace(runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("select run: %w", err)
	}
	return &run, nil
}

// RunsForProject lists runs newest first for audit purposes.
func (s *Store) RunsForProject(ctx context.Context, projectID string) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs,
		`SELECT * FROM runs WHERE project_id = ? ORDER BY started_at DESC, id DESC`,
		strings.TrimSpace(projectID)); err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	return runs, nil
}

// FailStaleRuns marks every persisted running run as failed. Called at
// startup before any new run starts, so rows left behind by a crashed
// process do not stay running forever.
func (s *Store) FailStaleRuns(ctx context.Context, message string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite store not initialised")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE status = ?`,
		RunFailed, message, time.Now().UTC(), RunRunning)
	if err != nil {
		return 0, fmt.Errorf("fail stale runs: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale run count: %w", err)
	}
	return count, nil
}

// InsertCandidate appends one proposed link, accepted or rejected. The
// rejection fields are final once written.
func (s *Store) InsertCandidate(ctx context.Context, cand Candidate) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO candidates(run_id, source_page_id, target_page_id, target_url, anchor_text, scenario, similarity, is_rejected, rejection_reason)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cand.RunID, cand.SourcePageID, cand.TargetPageID, cand.TargetURL,
		cand.AnchorText, cand.Scenario, cand.Similarity, cand.IsRejected, cand.RejectionReason)
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

// RejectCandidate flips an accepted candidate to rejected. Only the
// broken-link phase uses this; rejection fields are otherwise final at
// insert time.
func (s *Store) RejectCandidate(ctx context.Context, candidateID int64, reason string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET is_rejected = 1, rejection_reason = ? WHERE id = ? AND is_rejected = 0`,
		reason, candidateID)
	if err != nil {
		return fmt.Errorf("reject candidate: %w", err)
	}
	return nil
}

// CandidateFilter narrows candidate queries.
type CandidateFilter struct {
	Scenario string
	Rejected *bool
	Limit    int
	Offset   int
}

// CandidatesForRun returns candidates for a run with optional scenario and
// rejection filters, ordered by insertion for stable pagination.
func (s *Store) CandidatesForRun(ctx context.Context, runID string, filter CandidateFilter) ([]Candidate, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	query := `SELECT * FROM candidates WHERE run_id = ?`
	args := []interface{}{strings.TrimSpace(runID)}
	if scenario := strings.TrimSpace(filter.Scenario); scenario != "" {
		query += ` AND scenario = ?`
		args = append(args, scenario)
	}
	if filter.Rejected != nil {
		query += ` AND is_rejected = ?`
		args = append(args, *filter.Rejected)
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, filter.Limit, offset)
	}
	candidates := []Candidate{}
	if err := s.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	return candidates, nil
}

// AcceptedCountBySource returns the accepted-candidate count per source page
// for a run, used to rebuild the budget ledger after a restart.
func (s *Store) AcceptedCountBySource(ctx context.Context, runID string) (map[int64]int, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	rows := []struct {
		SourcePageID int64 `db:"source_page_id"`
		Count        int   `db:"count"`
	}{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT source_page_id, COUNT(*) AS count FROM candidates
                 WHERE run_id = ? AND is_rejected = 0 GROUP BY source_page_id`,
		strings.TrimSpace(runID)); err != nil {
		return nil, fmt.Errorf("select accepted counts: %w", err)
	}
	out := make(map[int64]int, len(rows))
	for _, row := range rows {
		out[row.SourcePageID] = row.Count
	}
	return out, nil
}

// RejectionStats aggregates rejection reasons for a run from the
// run_rejection_stats view.
func (s *Store) RejectionStats(ctx context.Context, runID string) ([]RejectionStat, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	stats := []RejectionStat{}
	if err := s.db.SelectContext(ctx, &stats,
		`SELECT * FROM run_rejection_stats WHERE run_id = ? ORDER BY count DESC, rejection_reason`,
		strings.TrimSpace(runID)); err != nil {
		return nil, fmt.Errorf("select rejection stats: %w", err)
	}
	return stats, nil
}
