// File path: internal/embedding/batcher.go
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/common/telemetry"
	"github.com/linkforge/linkforge/internal/llm"
)

// Batch size bounds for the adaptive batcher.
const (
	minBatchSize     = 8
	maxBatchSize     = 128
	initialBatchSize = 32

	slowBatchLatency = 2 * time.Second
	fastBatchLatency = 500 * time.Millisecond
	batchGrowFactor  = 1.5
)

// Batcher drives the embedding provider with an adaptive batch size: halve
// on failure or slow responses, grow on fast ones, always inside
// [minBatchSize, maxBatchSize]. One probe batch at startup seeds the size.
type Batcher struct {
	provider llm.Provider

	mu     sync.Mutex
	size   int
	probed bool
}

func NewBatcher(provider llm.Provider) *Batcher {
	return &Batcher{provider: provider, size: initialBatchSize}
}

// Size reports the current batch size, mainly for tests and logs.
func (b *Batcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// EmbedAll embeds every text, batching per the current adaptive size. On a
// batch failure the size is halved and the same batch retried once; a second
// failure aborts the whole call.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	start := 0
	if !b.isProbed() {
		// The probe is a single-text batch; its vector counts toward the
		// result, so the first text is not embedded twice.
		got, err := b.embedBatch(ctx, texts[:1])
		if err != nil {
			return nil, fmt.Errorf("embedding probe: %w", err)
		}
		b.markProbed()
		vectors = append(vectors, got...)
		start = 1
	}
	for start < len(texts) {
		size := b.Size()
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		got, err := b.embedBatch(ctx, batch)
		if err != nil {
			// One retry at half size before giving up.
			b.shrink()
			half := b.Size()
			if half > len(batch) {
				half = len(batch)
			}
			retry := batch[:half]
			got, err = b.embedBatch(ctx, retry)
			if err != nil {
				return nil, fmt.Errorf("embed batch of %d: %w", len(retry), err)
			}
			vectors = append(vectors, got...)
			start += len(retry)
			continue
		}
		vectors = append(vectors, got...)
		start = end
	}
	return vectors, nil
}

func (b *Batcher) isProbed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.probed
}

func (b *Batcher) markProbed() {
	b.mu.Lock()
	b.probed = true
	b.mu.Unlock()
}

func (b *Batcher) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	started := time.Now()
	vectors, err := b.provider.Embed(ctx, batch)
	elapsed := time.Since(started)
	telemetry.RecordEmbedBatch(len(batch), elapsed)
	if err != nil {
		common.Logger().Warn("embedding: batch failed",
			"size", len(batch), "elapsed", elapsed, "error", err)
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batch))
	}
	b.adapt(elapsed)
	return vectors, nil
}

func (b *Batcher) adapt(elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case elapsed > slowBatchLatency:
		b.size = clampBatch(b.size / 2)
	case elapsed < fastBatchLatency:
		b.size = clampBatch(int(float64(b.size) * batchGrowFactor))
	}
}

func (b *Batcher) shrink() {
	b.mu.Lock()
	b.size = clampBatch(b.size / 2)
	b.mu.Unlock()
}

func clampBatch(size int) int {
	if size < minBatchSize {
		return minBatchSize
	}
	if size > maxBatchSize {
		return maxBatchSize
	}
	return size
}
