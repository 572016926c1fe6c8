// File path: internal/sqlite/embeddings.go
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EmbeddingVector returns the cached vector for (projectID, textHash) or
// ok=false on a cache miss.
func (s *Store) EmbeddingVector(ctx context.Context, projectID, textHash string) ([]float32, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("sqlite store not initialised")
	}
	var blob []byte
	err := s.db.GetContext(ctx, &blob,
		`SELECT vector FROM embeddings WHERE project_id = ? AND text_hash = ?`,
		strings.TrimSpace(projectID), strings.TrimSpace(textHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select embedding: %w", err)
	}
	var vector []float32
	if err := json.Unmarshal(blob, &vector); err != nil {
		return nil, false, fmt.Errorf("decode embedding: %w", err)
	}
	return vector, true, nil
}

// PutEmbedding writes a vector into the persistent cache tier. Re-inserting
// the same key is a no-op so concurrent writers cannot conflict.
func (s *Store) PutEmbedding(ctx context.Context, projectID, textHash string, vector []float32) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for hash %s", textHash)
	}
	blob, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO embeddings(project_id, text_hash, dim, vector) VALUES (?, ?, ?, ?)
                 ON CONFLICT(project_id, text_hash) DO NOTHING`,
		strings.TrimSpace(projectID), strings.TrimSpace(textHash), len(vector), blob)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// EmbeddingCount reports the number of cached vectors for a project.
func (s *Store) EmbeddingCount(ctx context.Context, projectID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite store not initialised")
	}
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM embeddings WHERE project_id = ?`,
		strings.TrimSpace(projectID)); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}
