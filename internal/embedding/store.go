// File path: internal/embedding/store.go
package embedding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/common/telemetry"
	"github.com/linkforge/linkforge/internal/llm"
)

// PersistentTier is the durable vector cache under the in-memory LRU. The
// sqlite store satisfies it.
type PersistentTier interface {
	EmbeddingVector(ctx context.Context, projectID, textHash string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, projectID, textHash string, vector []float32) error
}

// Store resolves texts to vectors through three tiers: in-memory LRU,
// persistent cache, then the provider via the adaptive batcher. Provider
// results are written through both cache tiers. At most one provider batch
// is in flight per project.
type Store struct {
	cache      *Cache
	persistent PersistentTier
	batcher    *Batcher

	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

func NewStore(provider llm.Provider, persistent PersistentTier, cacheCapacity int) *Store {
	return &Store{
		cache:      NewCache(cacheCapacity),
		persistent: persistent,
		batcher:    NewBatcher(provider),
		gates:      make(map[string]*semaphore.Weighted),
	}
}

// Ensure resolves a single text to its vector.
func (s *Store) Ensure(ctx context.Context, projectID, text string) ([]float32, error) {
	vectors, err := s.EnsureAll(ctx, projectID, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EnsureAll resolves every text to a vector, in input order. Texts that
// normalise identically resolve to the same vector and cost one provider
// slot at most.
func (s *Store) EnsureAll(ctx context.Context, projectID string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	hashes := make([]string, len(texts))
	vectors := make([][]float32, len(texts))
	byHash := make(map[string][]int, len(texts))

	hits := 0
	for i, text := range texts {
		hash := TextHash(text)
		hashes[i] = hash
		if vector, ok := s.cache.Get(projectID, hash); ok {
			vectors[i] = vector
			hits++
			continue
		}
		byHash[hash] = append(byHash[hash], i)
	}
	if hits > 0 {
		telemetry.RecordEmbedCacheHit(hits)
	}
	if len(byHash) == 0 {
		return vectors, nil
	}

	missing := make([]string, 0, len(byHash))
	if s.persistent != nil {
		persisted := 0
		for hash, indexes := range byHash {
			vector, ok, err := s.persistent.EmbeddingVector(ctx, projectID, hash)
			if err != nil {
				return nil, fmt.Errorf("persistent embedding tier: %w", err)
			}
			if !ok {
				missing = append(missing, hash)
				continue
			}
			s.cache.Put(projectID, hash, vector)
			for _, idx := range indexes {
				vectors[idx] = vector
			}
			persisted += len(indexes)
			delete(byHash, hash)
		}
		if persisted > 0 {
			telemetry.RecordEmbedCacheHit(persisted)
		}
	} else {
		for hash := range byHash {
			missing = append(missing, hash)
		}
	}
	if len(byHash) == 0 {
		return vectors, nil
	}

	if err := s.embedMissing(ctx, projectID, texts, hashes, byHash, missing); err != nil {
		return nil, err
	}
	for i := range vectors {
		if vectors[i] == nil {
			if vector, ok := s.cache.Get(projectID, hashes[i]); ok {
				vectors[i] = vector
				continue
			}
			return nil, fmt.Errorf("no vector resolved for text %d", i)
		}
	}
	return vectors, nil
}

func (s *Store) embedMissing(ctx context.Context, projectID string, texts, hashes []string, byHash map[string][]int, missing []string) error {
	gate := s.projectGate(projectID)
	if err := gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer gate.Release(1)

	// Re-check under the gate: a concurrent caller may have filled some keys.
	toEmbed := make([]string, 0, len(missing))
	embedHashes := make([]string, 0, len(missing))
	for _, hash := range missing {
		if _, ok := s.cache.Get(projectID, hash); ok {
			continue
		}
		indexes, ok := byHash[hash]
		if !ok || len(indexes) == 0 {
			continue
		}
		toEmbed = append(toEmbed, NormalizeText(texts[indexes[0]]))
		embedHashes = append(embedHashes, hash)
	}
	if len(toEmbed) == 0 {
		return nil
	}
	common.Logger().Debug("embedding: provider fill", "project", projectID, "texts", len(toEmbed))

	got, err := s.batcher.EmbedAll(ctx, toEmbed)
	if err != nil {
		return err
	}
	if len(got) != len(toEmbed) {
		return fmt.Errorf("batcher returned %d vectors for %d texts", len(got), len(toEmbed))
	}
	for i, hash := range embedHashes {
		s.cache.Put(projectID, hash, got[i])
		if s.persistent != nil {
			if err := s.persistent.PutEmbedding(ctx, projectID, hash, got[i]); err != nil {
				return fmt.Errorf("write-through embedding: %w", err)
			}
		}
	}
	return nil
}

func (s *Store) projectGate(projectID string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate, ok := s.gates[projectID]
	if !ok {
		gate = semaphore.NewWeighted(1)
		s.gates[projectID] = gate
	}
	return gate
}
