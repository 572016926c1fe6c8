// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"expvar"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/linkforge/linkforge/internal/common"
)

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

type MemoryLimitError struct {
	Component string
	Usage     uint64
	Limit     uint64
}

func (e MemoryLimitError) Error() string {
	return fmt.Sprintf("memory limit exceeded for %s: %d > %d", e.Component, e.Usage, e.Limit)
}

var (
	initOnce sync.Once

	embedBatchTotal     *expvar.Int
	embedTextsTotal     *expvar.Int
	embedCacheHits      *expvar.Int
	embedBatchLatencyMS *expvar.Int

	anchorCallTotal     *expvar.Map
	anchorCallLatencyMS *expvar.Int

	vectorSearchTotal     *expvar.Int
	vectorSearchLatencyMS *expvar.Int

	linkCheckTotal  *expvar.Int
	linkCheckBroken *expvar.Int

	candidateTotal *expvar.Map

	memoryLimitBytes uint64
	memoryLimitVar   *expvar.Int
	memoryUsageVar   *expvar.Int
)

func ensureInit() {
	initOnce.Do(func() {
		embedBatchTotal = expvar.NewInt("linkforge_embed_batches_total")
		embedTextsTotal = expvar.NewInt("linkforge_embed_texts_total")
		embedCacheHits = expvar.NewInt("linkforge_embed_cache_hits")
		embedBatchLatencyMS = expvar.NewInt("linkforge_embed_batch_latency_ms")

		anchorCallTotal = expvar.NewMap("linkforge_anchor_calls_total")
		anchorCallLatencyMS = expvar.NewInt("linkforge_anchor_latency_ms")

		vectorSearchTotal = expvar.NewInt("linkforge_vector_search_total")
		vectorSearchLatencyMS = expvar.NewInt("linkforge_vector_search_latency_ms")

		linkCheckTotal = expvar.NewInt("linkforge_link_checks_total")
		linkCheckBroken = expvar.NewInt("linkforge_link_checks_broken")

		candidateTotal = expvar.NewMap("linkforge_candidates_total")

		memoryLimitVar = expvar.NewInt("linkforge_memory_limit_bytes")
		memoryUsageVar = expvar.NewInt("linkforge_memory_usage_bytes")

		memoryLimitBytes = loadMemoryLimit()
		memoryLimitVar.Set(int64(memoryLimitBytes))
	})
}

func loadMemoryLimit() uint64 {
	limit := strings.TrimSpace(os.Getenv("LINKFORGE_MEMORY_LIMIT_BYTES"))
	if limit != "" {
		if value, err := strconv.ParseUint(limit, 10, 64); err == nil {
			return value
		}
	}
	if limitMB := strings.TrimSpace(os.Getenv("LINKFORGE_MEMORY_LIMIT_MB")); limitMB != "" {
		if value, err := strconv.ParseUint(limitMB, 10, 64); err == nil {
			return value * 1024 * 1024
		}
	}
	return 0
}

func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...interface{})) {
	ensureInit()
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...interface{}) {
		if sp == nil {
			return
		}
		duration := time.Since(sp.start)
		logger.Debug("trace: end", append([]interface{}{"span", name, "dur", duration}, attrs...)...)
	}
}

// RecordEmbedBatch tracks a completed embedding batch round trip.
func RecordEmbedBatch(texts int, duration time.Duration) {
	ensureInit()
	if texts <= 0 {
		return
	}
	embedBatchTotal.Add(1)
	embedTextsTotal.Add(int64(texts))
	if duration > 0 {
		embedBatchLatencyMS.Add(duration.Milliseconds())
	}
}

// RecordEmbedCacheHit tracks vectors served without provider computation.
func RecordEmbedCacheHit(count int) {
	ensureInit()
	if count <= 0 {
		return
	}
	embedCacheHits.Add(int64(count))
}

// RecordAnchorCall tracks an anchor resolution attempt by outcome
// (resolved, no_anchor, error).
func RecordAnchorCall(outcome string, duration time.Duration) {
	ensureInit()
	key := strings.TrimSpace(strings.ToLower(outcome))
	if key == "" {
		key = "unknown"
	}
	anchorCallTotal.Add(key, 1)
	if duration > 0 {
		anchorCallLatencyMS.Add(duration.Milliseconds())
	}
}

func RecordVectorSearch(duration time.Duration) {
	ensureInit()
	vectorSearchTotal.Add(1)
	if duration > 0 {
		vectorSearchLatencyMS.Add(duration.Milliseconds())
	}
}

func RecordLinkChecks(checked, broken int) {
	ensureInit()
	if checked <= 0 {
		return
	}
	linkCheckTotal.Add(int64(checked))
	if broken > 0 {
		linkCheckBroken.Add(int64(broken))
	}
}

// RecordCandidate tracks a persisted candidate by disposition
// (accepted, or the rejection reason code).
func RecordCandidate(disposition string) {
	ensureInit()
	key := strings.TrimSpace(strings.ToLower(disposition))
	if key == "" {
		key = "unknown"
	}
	candidateTotal.Add(key, 1)
}

func CheckMemoryBudget(component string) error {
	ensureInit()
	if memoryLimitBytes == 0 {
		updateMemoryUsage()
		return nil
	}
	usage := updateMemoryUsage()
	if usage > memoryLimitBytes {
		err := MemoryLimitError{Component: component, Usage: usage, Limit: memoryLimitBytes}
		common.Logger().Warn("telemetry: memory guard tripped", "component", component, "usage", usage, "limit", memoryLimitBytes)
		return err
	}
	return nil
}

func updateMemoryUsage() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	usage := stats.Alloc
	memoryUsageVar.Set(int64(usage))
	return usage
}

func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}
