// File path: internal/sqlite/store_test.go
package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkforge/linkforge/internal/corpus"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestImportLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.LatestCompletedImport(ctx, "proj"); !errors.Is(err, ErrNoCompletedImport) {
		t.Fatalf("expected ErrNoCompletedImport, got %v", err)
	}

	importID, err := store.CreateImport(ctx, "proj", "https://site.test/")
	if err != nil {
		t.Fatalf("create import: %v", err)
	}
	// pending imports stay invisible to generation
	if _, err := store.LatestCompletedImport(ctx, "proj"); !errors.Is(err, ErrNoCompletedImport) {
		t.Fatalf("pending import must not be latest completed, got %v", err)
	}
	if err := store.CompleteImport(ctx, importID, 2); err != nil {
		t.Fatalf("complete import: %v", err)
	}
	latest, err := store.LatestCompletedImport(ctx, "proj")
	if err != nil {
		t.Fatalf("latest import: %v", err)
	}
	if latest.ID != importID || latest.PageCount != 2 {
		t.Fatalf("unexpected latest import %+v", latest)
	}
}

func TestPagesAndBlocksRoundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	importID, err := store.CreateImport(ctx, "proj", "")
	if err != nil {
		t.Fatalf("create import: %v", err)
	}
	published := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	pageID, err := store.InsertPage(ctx, corpus.Page{
		ProjectID:   "proj",
		ImportID:    importID,
		URL:         "https://site.test/guide",
		Title:       "Guide",
		Language:    "en",
		ClickDepth:  2,
		InDegree:    3,
		OutDegree:   1,
		WordCount:   420,
		PublishedAt: &published,
	})
	if err != nil {
		t.Fatalf("insert page: %v", err)
	}
	if err := store.InsertBlocks(ctx, pageID, []corpus.Block{
		{Type: corpus.BlockHeading, Text: "Guide", Position: 0},
		{Text: "First paragraph.", Position: 1},
	}); err != nil {
		t.Fatalf("insert blocks: %v", err)
	}

	pages, err := store.PagesForImport(ctx, importID)
	if err != nil {
		t.Fatalf("pages for import: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	page := pages[0]
	if page.ID != pageID || page.Title != "Guide" || page.ClickDepth != 2 || page.InDegree != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.PublishedAt == nil || !page.PublishedAt.Equal(published) {
		t.Fatalf("published_at lost: %+v", page.PublishedAt)
	}

	blocks, err := store.BlocksForPage(ctx, pageID)
	if err != nil {
		t.Fatalf("blocks for page: %v", err)
	}
	if len(blocks) != 2 || blocks[0].Type != corpus.BlockHeading || blocks[1].Text != "First paragraph." {
		t.Fatalf("unexpected blocks %+v", blocks)
	}
	// a blank type defaults to a paragraph group
	if blocks[1].Type != corpus.BlockParagraphGroup {
		t.Fatalf("expected paragraph-group default, got %q", blocks[1].Type)
	}

	byPage, err := store.BlocksForImport(ctx, importID)
	if err != nil {
		t.Fatalf("blocks for import: %v", err)
	}
	if len(byPage[pageID]) != 2 {
		t.Fatalf("expected 2 blocks keyed by page, got %d", len(byPage[pageID]))
	}
}

func TestRunProgressIsMonotonic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", ProjectID: "proj", Status: RunRunning, Phase: "loading"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := store.UpdateRunProgress(ctx, "run-1", "embedding", 60, 4, 1); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	// a smaller percent must not move the stored value backwards
	if err := store.UpdateRunProgress(ctx, "run-1", "embedding", 40, 5, 2); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Percent != 60 {
		t.Fatalf("expected percent held at 60, got %d", got.Percent)
	}
	if got.Generated != 5 || got.Rejected != 2 {
		t.Fatalf("expected counters updated, got %+v", got)
	}

	if err := store.FinishRun(ctx, "run-1", RunPublished, ""); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != RunPublished || got.Percent != 100 || !got.FinishedAt.Valid {
		t.Fatalf("unexpected finished run %+v", got)
	}
}

func TestGetRunUnknownID(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestFailStaleRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, run := range []Run{
		{ID: "run-1", ProjectID: "proj", Status: RunRunning},
		{ID: "run-2", ProjectID: "proj", Status: RunRunning},
	} {
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("create run: %v", err)
		}
	}
	if err := store.FinishRun(ctx, "run-2", RunPublished, ""); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	count, err := store.FailStaleRuns(ctx, "orphaned by restart")
	if err != nil {
		t.Fatalf("fail stale runs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stale run failed, got %d", count)
	}
	stale, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stale.Status != RunFailed || stale.ErrorMessage != "orphaned by restart" {
		t.Fatalf("unexpected stale run %+v", stale)
	}
	published, err := store.GetRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if published.Status != RunPublished {
		t.Fatalf("published run must be untouched, got %+v", published)
	}
}

func TestCandidateFiltersAndStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, Run{ID: "run-1", ProjectID: "proj", Status: RunRunning}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	candidates := []Candidate{
		{RunID: "run-1", SourcePageID: 1, TargetPageID: 2, TargetURL: "https://site.test/a", AnchorText: "guide", Scenario: "orphan", Similarity: 0.8},
		{RunID: "run-1", SourcePageID: 1, TargetPageID: 3, TargetURL: "https://site.test/b", Scenario: "orphan", IsRejected: true, RejectionReason: "no_natural_anchor"},
		{RunID: "run-1", SourcePageID: 2, TargetPageID: 3, TargetURL: "https://site.test/b", Scenario: "cluster", IsRejected: true, RejectionReason: "no_natural_anchor"},
		{RunID: "run-1", SourcePageID: 2, TargetPageID: 4, TargetURL: "https://site.test/c", Scenario: "cluster", IsRejected: true, RejectionReason: "stop_anchor"},
	}
	for _, cand := range candidates {
		if err := store.InsertCandidate(ctx, cand); err != nil {
			t.Fatalf("insert candidate: %v", err)
		}
	}

	orphanOnly, err := store.CandidatesForRun(ctx, "run-1", CandidateFilter{Scenario: "orphan"})
	if err != nil {
		t.Fatalf("candidates for run: %v", err)
	}
	if len(orphanOnly) != 2 {
		t.Fatalf("expected 2 orphan candidates, got %d", len(orphanOnly))
	}

	accepted := false
	acceptedOnly, err := store.CandidatesForRun(ctx, "run-1", CandidateFilter{Rejected: &accepted})
	if err != nil {
		t.Fatalf("candidates for run: %v", err)
	}
	if len(acceptedOnly) != 1 || acceptedOnly[0].AnchorText != "guide" {
		t.Fatalf("unexpected accepted candidates %+v", acceptedOnly)
	}

	paged, err := store.CandidatesForRun(ctx, "run-1", CandidateFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("candidates for run: %v", err)
	}
	if len(paged) != 2 || paged[0].TargetURL != "https://site.test/b" {
		t.Fatalf("unexpected page %+v", paged)
	}

	counts, err := store.AcceptedCountBySource(ctx, "run-1")
	if err != nil {
		t.Fatalf("accepted counts: %v", err)
	}
	if counts[1] != 1 || counts[2] != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}

	stats, err := store.RejectionStats(ctx, "run-1")
	if err != nil {
		t.Fatalf("rejection stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 rejection reasons, got %+v", stats)
	}
	if stats[0].Reason != "no_natural_anchor" || stats[0].Count != 2 {
		t.Fatalf("expected no_natural_anchor first with count 2, got %+v", stats[0])
	}
}

func TestRejectCandidateFlipsOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, Run{ID: "run-1", ProjectID: "proj", Status: RunRunning}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := store.InsertCandidate(ctx, Candidate{
		RunID: "run-1", SourcePageID: 1, TargetPageID: 2,
		TargetURL: "https://site.test/gone", AnchorText: "guide", Scenario: "orphan",
	}); err != nil {
		t.Fatalf("insert candidate: %v", err)
	}
	all, err := store.CandidatesForRun(ctx, "run-1", CandidateFilter{})
	if err != nil || len(all) != 1 {
		t.Fatalf("candidates: %v (%d)", err, len(all))
	}
	if err := store.RejectCandidate(ctx, all[0].ID, "404_url"); err != nil {
		t.Fatalf("reject candidate: %v", err)
	}
	// second rejection with a different reason must not overwrite
	if err := store.RejectCandidate(ctx, all[0].ID, "stop_anchor"); err != nil {
		t.Fatalf("reject candidate: %v", err)
	}
	all, err = store.CandidatesForRun(ctx, "run-1", CandidateFilter{})
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if !all[0].IsRejected || all[0].RejectionReason != "404_url" {
		t.Fatalf("unexpected candidate %+v", all[0])
	}
}

func TestEmbeddingTierRoundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.EmbeddingVector(ctx, "proj", "hash-1"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	vector := []float32{0.25, -1, 3}
	if err := store.PutEmbedding(ctx, "proj", "hash-1", vector); err != nil {
		t.Fatalf("put embedding: %v", err)
	}
	// duplicate insert is a no-op, not an error
	if err := store.PutEmbedding(ctx, "proj", "hash-1", []float32{9}); err != nil {
		t.Fatalf("duplicate put: %v", err)
	}
	got, ok, err := store.EmbeddingVector(ctx, "proj", "hash-1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 3 || got[0] != 0.25 || got[2] != 3 {
		t.Fatalf("unexpected vector %v", got)
	}
	if err := store.PutEmbedding(ctx, "proj", "hash-2", nil); err == nil {
		t.Fatalf("expected empty vector rejection")
	}
	count, err := store.EmbeddingCount(ctx, "proj")
	if err != nil || count != 1 {
		t.Fatalf("expected 1 cached vector, got %d (%v)", count, err)
	}
}
