// File path: internal/sqlite/types.go
package sqlite

import (
	"database/sql"
	"time"
)

// Import represents one corpus import batch.
type Import struct {
	ID          int64          `db:"id"`
	ProjectID   string         `db:"project_id"`
	Status      string         `db:"status"`
	RootURL     sql.NullString `db:"root_url"`
	PageCount   int            `db:"page_count"`
	CreatedAt   time.Time      `db:"created_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

// Import statuses.
const (
	ImportPending   = "pending"
	ImportCompleted = "completed"
)

// PageRow mirrors the pages table.
type PageRow struct {
	ID          int64          `db:"id"`
	ProjectID   string         `db:"project_id"`
	ImportID    int64          `db:"import_id"`
	URL         string         `db:"url"`
	Title       sql.NullString `db:"title"`
	Language    sql.NullString `db:"language"`
	ClickDepth  int            `db:"click_depth"`
	InDegree    int            `db:"in_degree"`
	OutDegree   int            `db:"out_degree"`
	WordCount   int            `db:"word_count"`
	PublishedAt sql.NullTime   `db:"published_at"`
}

// BlockRow mirrors the blocks table.
type BlockRow struct {
	ID       int64  `db:"id"`
	PageID   int64  `db:"page_id"`
	Type     string `db:"type"`
	Text     string `db:"text"`
	Position int    `db:"position"`
}

// Run mirrors the runs table and is the single source of truth for the
// status, phase and counters of a generation run.
type Run struct {
	ID           string       `db:"id"`
	ProjectID    string       `db:"project_id"`
	Status       string       `db:"status"`
	Phase        string       `db:"phase"`
	Percent      int          `db:"percent"`
	Generated    int          `db:"generated"`
	Rejected     int          `db:"rejected"`
	ErrorMessage string       `db:"error_message"`
	StartedAt    time.Time    `db:"started_at"`
	FinishedAt   sql.NullTime `db:"finished_at"`
}

// Candidate mirrors the candidates table. Rows are append-mostly: rejection
// fields are written at insert time, flipped at most once by the broken-link
// phase, and never touched after the run finishes.
type Candidate struct {
	ID              int64     `db:"id"`
	RunID           string    `db:"run_id"`
	SourcePageID    int64     `db:"source_page_id"`
	TargetPageID    int64     `db:"target_page_id"`
	TargetURL       string    `db:"target_url"`
	AnchorText      string    `db:"anchor_text"`
	Scenario        string    `db:"scenario"`
	Similarity      float64   `db:"similarity"`
	IsRejected      bool      `db:"is_rejected"`
	RejectionReason string    `db:"rejection_reason"`
	CreatedAt       time.Time `db:"created_at"`
}

// RejectionStat aggregates candidate rejections per reason for a run.
type RejectionStat struct {
	RunID  string `db:"run_id"`
	Reason string `db:"rejection_reason"`
	Count  int    `db:"count"`
}
