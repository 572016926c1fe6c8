// File path: internal/sqlite/pages.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/linkforge/linkforge/internal/corpus"
)

// ErrNoCompletedImport is returned when a project has no finished import to
// generate links against.
var ErrNoCompletedImport = errors.New("no completed import for project")

// CreateImport opens a new pending import batch for a project.
func (s *Store) CreateImport(ctx context.Context, projectID, rootURL string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite store not initialised")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return 0, fmt.Errorf("project id required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO imports(project_id, status, root_url) VALUES (?, ?, ?)`,
		projectID, ImportPending, strings.TrimSpace(rootURL))
	if err != nil {
		return 0, fmt.Errorf("insert import: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("import id: %w", err)
	}
	return id, nil
}

// CompleteImport marks an import batch as completed with its final page count.
func (s *Store) CompleteImport(ctx context.Context, importID int64, pageCount int) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE imports SET status = ?, page_count = ?, completed_at = ? WHERE id = ?`,
		ImportCompleted, pageCount, time.Now().UTC(), importID)
	if err != nil {
		return fmt.Errorf("complete import: %w", err)
	}
	return nil
}

// LatestCompletedImport returns the newest completed import for a project or
// ErrNoCompletedImport when none exists.
func (s *Store) LatestCompletedImport(ctx context.Context, projectID string) (*Import, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	var row Import
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM imports WHERE project_id = ? AND status = ? ORDER BY completed_at DESC, id DESC LIMIT 1`,
		strings.TrimSpace(projectID), ImportCompleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoCompletedImport
		}
		return nil, fmt.Errorf("select latest import: %w", err)
	}
	return &row, nil
}

// InsertPage stores one page of an import batch and returns its identifier.
func (s *Store) InsertPage(ctx context.Context, page corpus.Page) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite store not initialised")
	}
	var published interface{}
	if page.PublishedAt != nil {
		published = page.PublishedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pages(project_id, import_id, url, title, language, click_depth, in_degree, out_degree, word_count, published_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		page.ProjectID, page.ImportID, page.URL, page.Title, page.Language,
		page.ClickDepth, page.InDegree, page.OutDegree, page.WordCount, published)
	if err != nil {
		return 0, fmt.Errorf("insert page: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("page id: %w", err)
	}
	return id, nil
}

// InsertBlocks stores the text blocks of a page in one transaction.
func (s *Store) InsertBlocks(ctx context.Context, pageID int64, blocks []corpus.Block) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	if len(blocks) == 0 {
		return nil
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, block := range blocks {
			blockType := strings.TrimSpace(block.Type)
			if blockType == "" {
				blockType = corpus.BlockParagraphGroup
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO blocks(page_id, type, text, position) VALUES (?, ?, ?, ?)`,
				pageID, blockType, block.Text, block.Position); err != nil {
				return fmt.Errorf("insert block: %w", err)
			}
		}
		return nil
	})
}

// PagesForImport returns all pages of an import batch ordered by URL.
func (s *Store) PagesForImport(ctx context.Context, importID int64) ([]corpus.Page, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	rows := []PageRow{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM pages WHERE import_id = ? ORDER BY url`, importID); err != nil {
		return nil, fmt.Errorf("select pages: %w", err)
	}
	pages := make([]corpus.Page, 0, len(rows))
	for _, row := range rows {
		pages = append(pages, pageFromRow(row))
	}
	return pages, nil
}

// BlocksForPage returns the text blocks of a page in document order.
func (s *Store) BlocksForPage(ctx context.Context, pageID int64) ([]corpus.Block, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	rows := []BlockRow{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM blocks WHERE page_id = ? ORDER BY position, id`, pageID); err != nil {
		return nil, fmt.Errorf("select blocks: %w", err)
	}
	blocks := make([]corpus.Block, 0, len(rows))
	for _, row := range rows {
		blocks = append(blocks, corpus.Block{
			ID:       row.ID,
			PageID:   row.PageID,
			Type:     row.Type,
			Text:     row.Text,
			Position: row.Position,
		})
	}
	return blocks, nil
}

// BlocksForImport returns the blocks of every page in an import batch keyed
// by page id.
func (s *Store) BlocksForImport(ctx context.Context, importID int64) (map[int64][]corpus.Block, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	rows := []BlockRow{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT b.* FROM blocks b INNER JOIN pages p ON p.id = b.page_id
                 WHERE p.import_id = ? ORDER BY b.page_id, b.position, b.id`, importID); err != nil {
		return nil, fmt.Errorf("select import blocks: %w", err)
	}
	out := make(map[int64][]corpus.Block)
	for _, row := range rows {
		out[row.PageID] = append(out[row.PageID], corpus.Block{
			ID:       row.ID,
			PageID:   row.PageID,
			Type:     row.Type,
			Text:     row.Text,
			Position: row.Position,
		})
	}
	return out, nil
}

func pageFromRow(row PageRow) corpus.Page {
	page := corpus.Page{
		ID:         row.ID,
		ProjectID:  row.ProjectID,
		ImportID:   row.ImportID,
		URL:        row.URL,
		ClickDepth: row.ClickDepth,
		InDegree:   row.InDegree,
		OutDegree:  row.OutDegree,
		WordCount:  row.WordCount,
	}
	if row.Title.Valid {
		page.Title = row.Title.String
	}
	if row.Language.Valid {
		page.Language = row.Language.String
	}
	if row.PublishedAt.Valid {
		published := row.PublishedAt.Time
		page.PublishedAt = &published
	}
	return page
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
