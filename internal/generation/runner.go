// File path: internal/generation/runner.go
package generation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/common/telemetry"
	"github.com/linkforge/linkforge/internal/corpus"
	"github.com/linkforge/linkforge/internal/progress"
	"github.com/linkforge/linkforge/internal/scenario"
	"github.com/linkforge/linkforge/internal/similarity"
	"github.com/linkforge/linkforge/internal/sqlite"
	validate "github.com/linkforge/linkforge/internal/validator"
)

// Phase names, in execution order. Scenario phases use the scenario tag.
const (
	phaseLoading     = "loading"
	phaseEmbedding   = "embedding"
	phaseBrokenLinks = "checking_broken_links"
	phaseFinalizing  = "finalizing"
)

// Percent band boundaries per phase.
const (
	percentLoadingEnd   = 20
	percentEmbeddingEnd = 70
	percentScenariosEnd = 90
	percentBrokenEnd    = 95
)

const embeddingChunkPages = 25

// Approximate neighbors fetched per page when the vector index narrows the
// cluster pool. Kept larger than any TopN so exact ranking still has slack.
const clusterNeighborPool = 20

// runner executes one generation run through its phase sequence. Counters
// are atomics because donor validation is parallel; percent is monotonic by
// construction.
type runner struct {
	mgr      *Manager
	runID    string
	req      Request
	importID int64

	generated atomic.Int64
	rejected  atomic.Int64

	mu      sync.Mutex
	percent int
}

func newRunner(mgr *Manager, runID string, req Request, importID int64) *runner {
	return &runner{mgr: mgr, runID: runID, req: req, importID: importID}
}

func (r *runner) run(ctx context.Context) {
	logger := common.Logger()
	err := r.execute(ctx)
	finishCtx := context.Background()
	switch {
	case err == nil:
		if finishErr := r.mgr.store.FinishRun(finishCtx, r.runID, sqlite.RunPublished, ""); finishErr != nil {
			logger.Error("generation: finish write failed", "run", r.runID, "error", finishErr)
		}
		r.publishTerminal(true, "")
		logger.Info("generation: run published",
			"run", r.runID, "generated", r.generated.Load(), "rejected", r.rejected.Load())
	case errors.Is(err, context.Canceled):
		if finishErr := r.mgr.store.FinishRun(finishCtx, r.runID, sqlite.RunCanceled, "canceled by request"); finishErr != nil {
			logger.Error("generation: finish write failed", "run", r.runID, "error", finishErr)
		}
		r.publishTerminal(false, "canceled by request")
		logger.Info("generation: run canceled", "run", r.runID)
	default:
		if finishErr := r.mgr.store.FinishRun(finishCtx, r.runID, sqlite.RunFailed, err.Error()); finishErr != nil {
			logger.Error("generation: finish write failed", "run", r.runID, "error", finishErr)
		}
		r.publishTerminal(false, err.Error())
		logger.Error("generation: run failed", "run", r.runID, "error", err)
	}
}

func (r *runner) execute(ctx context.Context) error {
	// Phase: loading.
	if err := ctx.Err(); err != nil {
		return err
	}
	loadCtx, endLoad := telemetry.StartSpan(ctx, phaseLoading)
	pages, blocks, stats, err := r.load(loadCtx)
	if err != nil {
		return fmt.Errorf("loading: %w", err)
	}
	endLoad("pages", len(pages))
	r.report(ctx, phaseLoading, percentLoadingEnd)

	// Phase: embedding.
	if err := ctx.Err(); err != nil {
		return err
	}
	embedCtx, endEmbed := telemetry.StartSpan(ctx, phaseEmbedding)
	vectors, err := r.embed(embedCtx, pages, blocks)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := telemetry.CheckMemoryBudget("embedding"); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	r.mirrorVectors(embedCtx, pages, vectors)
	endEmbed("pages", len(vectors))
	r.report(ctx, phaseEmbedding, percentEmbeddingEnd)

	// Scenario phases, splitting the band evenly across enabled scenarios.
	gate := validate.New(r.req.ValidatorConfig(), r.mgr.resolver)
	enabled := r.req.EnabledScenarios()
	band := percentScenariosEnd - percentEmbeddingEnd
	for i, name := range enabled {
		if err := ctx.Err(); err != nil {
			return err
		}
		scenarioCtx, endScenario := telemetry.StartSpan(ctx, name)
		err := r.runScenario(scenarioCtx, name, pages, blocks, stats, vectors, gate)
		endScenario()
		if err != nil {
			return fmt.Errorf("scenario %s: %w", name, err)
		}
		phaseEnd := percentEmbeddingEnd + band*(i+1)/len(enabled)
		r.report(ctx, name, phaseEnd)
	}

	// Phase: broken-link check.
	if err := ctx.Err(); err != nil {
		return err
	}
	checkCtx, endCheck := telemetry.StartSpan(ctx, phaseBrokenLinks)
	err = r.checkBrokenLinks(checkCtx)
	endCheck()
	if err != nil {
		return fmt.Errorf("checking_broken_links: %w", err)
	}
	r.report(ctx, phaseBrokenLinks, percentBrokenEnd)

	// Phase: finalizing. Accepted candidates are draft-ready as stored.
	if err := ctx.Err(); err != nil {
		return err
	}
	r.report(ctx, phaseFinalizing, 100)
	return nil
}

func (r *runner) load(ctx context.Context) ([]corpus.Page, map[int64][]corpus.Block, corpus.Stats, error) {
	pages, err := r.mgr.store.PagesForImport(ctx, r.importID)
	if err != nil {
		return nil, nil, corpus.Stats{}, err
	}
	if len(pages) == 0 {
		return nil, nil, corpus.Stats{}, fmt.Errorf("import %d has no pages", r.importID)
	}
	blocks, err := r.mgr.store.BlocksForImport(ctx, r.importID)
	if err != nil {
		return nil, nil, corpus.Stats{}, err
	}
	stats := corpus.ComputeStats(pages, r.req.Rules.MoneyPages)
	return pages, blocks, stats, nil
}

// embed ensures vectors for every block and derives one vector per page as
// the mean of its block vectors. Pages without blocks fall back to title and
// URL text so every page stays searchable.
func (r *runner) embed(ctx context.Context, pages []corpus.Page, blocks map[int64][]corpus.Block) (map[int64][]float32, error) {
	vectors := make(map[int64][]float32, len(pages))
	embeddingBand := percentEmbeddingEnd - percentLoadingEnd
	for start := 0; start < len(pages); start += embeddingChunkPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + embeddingChunkPages
		if end > len(pages) {
			end = len(pages)
		}
		texts := []string{}
		spans := make([][2]int, 0, end-start)
		for _, page := range pages[start:end] {
			from := len(texts)
			for _, block := range blocks[page.ID] {
				texts = append(texts, block.Text)
			}
			if len(texts) == from {
				texts = append(texts, page.Title+" "+page.URL)
			}
			spans = append(spans, [2]int{from, len(texts)})
		}
		got, err := r.mgr.embeddings.EnsureAll(ctx, r.req.ProjectID, texts)
		if err != nil {
			return nil, err
		}
		for i, page := range pages[start:end] {
			vector, err := meanVector(got[spans[i][0]:spans[i][1]])
			if err != nil {
				return nil, fmt.Errorf("page %s: %w", page.URL, err)
			}
			vectors[page.ID] = vector
		}
		percent := percentLoadingEnd + embeddingBand*end/len(pages)
		r.report(ctx, phaseEmbedding, percent)
	}
	return vectors, nil
}

func (r *runner) mirrorVectors(ctx context.Context, pages []corpus.Page, vectors map[int64][]float32) {
	if r.mgr.index == nil {
		return
	}
	if err := r.mgr.index.UpsertPages(ctx, r.req.ProjectID, pages, vectors); err != nil {
		// The in-process search stays authoritative, so a mirror failure is
		// only worth a warning.
		common.Logger().Warn("generation: vector mirror failed", "run", r.runID, "error", err)
	}
}

func (r *runner) runScenario(ctx context.Context, name string, pages []corpus.Page, blocks map[int64][]corpus.Block, stats corpus.Stats, vectors map[int64][]float32, gate *validate.Validator) error {
	fn, err := scenario.ForName(name)
	if err != nil {
		return err
	}
	params := r.req.ParamsFor(name)
	if name == scenario.Cluster && r.mgr.index != nil {
		params.ClusterPool = r.narrowClusterPools(ctx, pages, vectors)
	}
	proposals, err := fn(pages, &stats, vectors, params)
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		return nil
	}

	// Alternate targets for the replace policy: the donor's other proposed
	// targets in this scenario, in rank order.
	bySource := make(map[int64][]scenario.Proposal)
	for _, proposal := range proposals {
		bySource[proposal.SourcePageID] = append(bySource[proposal.SourcePageID], proposal)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.mgr.donorLimit)
	for _, proposal := range proposals {
		proposal := proposal
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			return r.judge(groupCtx, proposal, stats, blocks, vectors, bySource, gate)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	common.Logger().Debug("generation: scenario judged",
		"run", r.runID, "scenario", name, "proposals", len(proposals),
		"elapsed", telemetry.SpanDuration(ctx))
	return nil
}

// narrowClusterPools asks the vector index for each page's approximate
// neighbors so cluster cross-link ranks a short pool instead of the whole
// corpus. Any index failure falls back to exact full pools.
func (r *runner) narrowClusterPools(ctx context.Context, pages []corpus.Page, vectors map[int64][]float32) map[int64][]int64 {
	pools := make(map[int64][]int64, len(pages))
	for _, page := range pages {
		query, ok := vectors[page.ID]
		if !ok {
			continue
		}
		results, err := r.mgr.index.Search(ctx, r.req.ProjectID, query, clusterNeighborPool)
		if err != nil {
			common.Logger().Warn("generation: index narrowing failed, using exact pools",
				"run", r.runID, "error", err)
			return nil
		}
		ids := make([]int64, 0, len(results))
		for _, result := range results {
			if result.PageID != page.ID {
				ids = append(ids, result.PageID)
			}
		}
		pools[page.ID] = ids
	}
	return pools
}

func (r *runner) judge(ctx context.Context, proposal scenario.Proposal, stats corpus.Stats, blocks map[int64][]corpus.Block, vectors map[int64][]float32, bySource map[int64][]scenario.Proposal, gate *validate.Validator) error {
	source, ok := stats.PagesByID[proposal.SourcePageID]
	if !ok {
		return fmt.Errorf("unknown source page %d", proposal.SourcePageID)
	}
	target, ok := stats.PagesByID[proposal.TargetPageID]
	if !ok {
		return fmt.Errorf("unknown target page %d", proposal.TargetPageID)
	}

	alternates := []corpus.Page{}
	for _, sibling := range bySource[proposal.SourcePageID] {
		if sibling.TargetPageID == proposal.TargetPageID {
			continue
		}
		if alt, ok := stats.PagesByID[sibling.TargetPageID]; ok {
			alternates = append(alternates, alt)
		}
	}

	outcome := gate.Validate(ctx, validate.Candidate{
		Source:        source,
		Target:        target,
		Scenario:      proposal.Scenario,
		Similarity:    proposal.Similarity,
		Overlap:       pairOverlap(vectors, source.ID, target.ID),
		SourceContext: sourceContext(source, blocks[source.ID]),
		Alternates:    alternates,
	})

	cand := sqlite.Candidate{
		RunID:        r.runID,
		SourcePageID: source.ID,
		TargetPageID: outcome.Target.ID,
		TargetURL:    outcome.Target.URL,
		Scenario:     proposal.Scenario,
		Similarity:   proposal.Similarity,
	}
	if outcome.Accepted {
		cand.AnchorText = outcome.Anchor
		r.generated.Add(1)
		telemetry.RecordCandidate("accepted")
	} else {
		cand.IsRejected = true
		cand.RejectionReason = outcome.Reason
		r.rejected.Add(1)
		telemetry.RecordCandidate(outcome.Reason)
	}
	if err := r.mgr.store.InsertCandidate(ctx, cand); err != nil {
		return err
	}
	return nil
}

// checkBrokenLinks probes the distinct target URLs of accepted candidates
// and applies the broken-link policy retroactively: delete (and replace
// without a live alternate, which at this point means delete) flips the
// candidate to rejected with the 404 reason; ignore leaves it alone.
func (r *runner) checkBrokenLinks(ctx context.Context) error {
	if r.mgr.checker == nil || r.req.Rules.BrokenLinksPolicy == validate.BrokenIgnore {
		return nil
	}
	rejected := false
	accepted, err := r.mgr.store.CandidatesForRun(ctx, r.runID, sqlite.CandidateFilter{Rejected: &rejected})
	if err != nil {
		return err
	}
	if len(accepted) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	urls := []string{}
	for _, cand := range accepted {
		url := corpus.NormalizeURL(cand.TargetURL)
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		urls = append(urls, cand.TargetURL)
	}
	sort.Strings(urls)

	broken, err := r.mgr.checker.CheckAll(ctx, urls)
	if err != nil {
		return err
	}
	if len(broken) == 0 {
		return nil
	}
	brokenSet := make(map[string]struct{}, len(broken))
	for _, url := range broken {
		brokenSet[corpus.NormalizeURL(url)] = struct{}{}
	}
	for _, cand := range accepted {
		if _, ok := brokenSet[corpus.NormalizeURL(cand.TargetURL)]; !ok {
			continue
		}
		if err := r.mgr.store.RejectCandidate(ctx, cand.ID, validate.ReasonBrokenURL); err != nil {
			return err
		}
		r.generated.Add(-1)
		r.rejected.Add(1)
		telemetry.RecordCandidate(validate.ReasonBrokenURL)
	}
	return nil
}

// report persists progress and publishes it to subscribers. Percent never
// regresses; publishes are coalesced per phase boundary or chunk.
func (r *runner) report(ctx context.Context, phase string, percent int) {
	r.mu.Lock()
	if percent < r.percent {
		percent = r.percent
	}
	r.percent = percent
	r.mu.Unlock()

	generated := int(r.generated.Load())
	rejected := int(r.rejected.Load())
	if err := r.mgr.store.UpdateRunProgress(context.WithoutCancel(ctx), r.runID, phase, percent, generated, rejected); err != nil {
		common.Logger().Warn("generation: progress write failed", "run", r.runID, "error", err)
	}
	if r.mgr.broker != nil {
		r.mgr.broker.Publish(progress.Event{
			RunID:     r.runID,
			Phase:     phase,
			Percent:   percent,
			Generated: generated,
			Rejected:  rejected,
		})
	}
}

func (r *runner) publishTerminal(success bool, message string) {
	if r.mgr.broker == nil {
		return
	}
	r.mu.Lock()
	percent := r.percent
	r.mu.Unlock()
	if success {
		percent = 100
	}
	phase := phaseFinalizing
	if !success {
		run, err := r.mgr.store.GetRun(context.Background(), r.runID)
		if err == nil {
			phase = run.Phase
		}
	}
	r.mgr.broker.Publish(progress.Event{
		RunID:     r.runID,
		Phase:     phase,
		Percent:   percent,
		Generated: int(r.generated.Load()),
		Rejected:  int(r.rejected.Load()),
		Done:      true,
		Success:   success,
		Message:   message,
	})
}

func meanVector(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, errors.New("no vectors to average")
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, vector := range vectors {
		if len(vector) != dim {
			return nil, fmt.Errorf("vector dimension mismatch: %d vs %d", len(vector), dim)
		}
		for i, v := range vector {
			sum[i] += float64(v)
		}
	}
	mean := make([]float32, dim)
	for i, v := range sum {
		mean[i] = float32(v / float64(len(vectors)))
	}
	return mean, nil
}

func pairOverlap(vectors map[int64][]float32, a, b int64) float64 {
	va, okA := vectors[a]
	vb, okB := vectors[b]
	if !okA || !okB {
		return 0
	}
	overlap, err := similarity.Cosine(va, vb)
	if err != nil {
		return 0
	}
	return overlap
}

// sourceContext picks the passage an inserted link would live in: the first
// paragraph block, else any first block, else the title.
func sourceContext(page corpus.Page, blocks []corpus.Block) string {
	for _, block := range blocks {
		if block.Type == corpus.BlockParagraphGroup {
			return block.Text
		}
	}
	if len(blocks) > 0 {
		return blocks[0].Text
	}
	return page.Title
}
