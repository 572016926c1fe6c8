// File path: internal/validator/validator_test.go
package validator

import (
	"context"
	"sync"
	"testing"

	"github.com/linkforge/linkforge/internal/anchor"
	"github.com/linkforge/linkforge/internal/corpus"
)

// stubResolver returns a fixed anchor, or ErrNoAnchor when empty.
type stubResolver struct {
	anchorText string
	calls      int
	mu         sync.Mutex
}

func (r *stubResolver) Resolve(ctx context.Context, req anchor.Request) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.anchorText == "" {
		return "", anchor.ErrNoAnchor
	}
	return r.anchorText, nil
}

func (r *stubResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func pair() (corpus.Page, corpus.Page) {
	source := corpus.Page{ID: 1, URL: "https://site.test/source", Title: "Source"}
	target := corpus.Page{ID: 2, URL: "https://site.test/target", Title: "Target"}
	return source, target
}

func TestValidateRejectsSelfLinkFirst(t *testing.T) {
	resolver := &stubResolver{anchorText: "useful guide"}
	v := New(Config{MaxLinks: 3}, resolver)
	source, _ := pair()
	outcome := v.Validate(context.Background(), Candidate{Source: source, Target: source})
	if outcome.Accepted || outcome.Reason != ReasonSelfLink {
		t.Fatalf("expected self_link rejection, got %+v", outcome)
	}
	if resolver.callCount() != 0 {
		t.Fatalf("self-link must not reach the anchor resolver")
	}
}

func TestValidateEnforcesBudgetBeforeAnchorCalls(t *testing.T) {
	resolver := &stubResolver{anchorText: "useful guide"}
	v := New(Config{MaxLinks: 1}, resolver)
	source, target := pair()
	first := v.Validate(context.Background(), Candidate{Source: source, Target: target})
	if !first.Accepted {
		t.Fatalf("expected first candidate accepted, got %+v", first)
	}
	callsAfterFirst := resolver.callCount()

	other := corpus.Page{ID: 3, URL: "https://site.test/other"}
	second := v.Validate(context.Background(), Candidate{Source: source, Target: other})
	if second.Accepted || second.Reason != ReasonMaxLinks {
		t.Fatalf("expected max_links_exceeded, got %+v", second)
	}
	if resolver.callCount() != callsAfterFirst {
		t.Fatalf("budget rejection must not spend an anchor call")
	}
}

func TestValidateRejectsDuplicateURL(t *testing.T) {
	resolver := &stubResolver{anchorText: "useful guide"}
	v := New(Config{MaxLinks: 5, DedupeLinks: true}, resolver)
	source, target := pair()
	if outcome := v.Validate(context.Background(), Candidate{Source: source, Target: target}); !outcome.Accepted {
		t.Fatalf("expected first accepted, got %+v", outcome)
	}
	dup := v.Validate(context.Background(), Candidate{Source: source, Target: target})
	if dup.Accepted || dup.Reason != ReasonDuplicate {
		t.Fatalf("expected duplicate_url, got %+v", dup)
	}
}

func TestValidateCannibalizationSensitivity(t *testing.T) {
	resolver := &stubResolver{anchorText: "useful guide"}
	v := New(Config{
		MaxLinks:             5,
		Cannibalization:      true,
		CannibalizationLevel: SensitivityMedium,
	}, resolver)
	source, target := pair()

	rejected := v.Validate(context.Background(), Candidate{Source: source, Target: target, Overlap: 0.62})
	if rejected.Accepted || rejected.Reason != ReasonCannibalization {
		t.Fatalf("expected cannibalization rejection above 0.5, got %+v", rejected)
	}
	accepted := v.Validate(context.Background(), Candidate{Source: source, Target: target, Overlap: 0.41})
	if !accepted.Accepted {
		t.Fatalf("expected acceptance below 0.5, got %+v", accepted)
	}
}

func TestValidateNoNaturalAnchor(t *testing.T) {
	v := New(Config{MaxLinks: 5}, &stubResolver{})
	source, target := pair()
	outcome := v.Validate(context.Background(), Candidate{Source: source, Target: target})
	if outcome.Accepted || outcome.Reason != ReasonNoAnchor {
		t.Fatalf("expected no_natural_anchor, got %+v", outcome)
	}
}

func TestValidateStopAnchorIsCaseInsensitive(t *testing.T) {
	resolver := &stubResolver{anchorText: "just Click Here now"}
	v := New(Config{MaxLinks: 5, StopAnchors: []string{"click here"}}, resolver)
	source, target := pair()
	outcome := v.Validate(context.Background(), Candidate{Source: source, Target: target})
	if outcome.Accepted || outcome.Reason != ReasonStopAnchor {
		t.Fatalf("expected stop_anchor, got %+v", outcome)
	}
}

func TestValidateBrokenLinkPolicies(t *testing.T) {
	source, target := pair()
	alternate := corpus.Page{ID: 3, URL: "https://site.test/alternate", Title: "Alternate"}

	deleteGate := New(Config{MaxLinks: 5, BrokenLinksPolicy: BrokenDelete}, &stubResolver{anchorText: "useful guide"})
	deleteGate.MarkBroken([]string{target.URL})
	outcome := deleteGate.Validate(context.Background(), Candidate{Source: source, Target: target})
	if outcome.Accepted || outcome.Reason != ReasonBrokenURL {
		t.Fatalf("delete policy: expected 404_url, got %+v", outcome)
	}

	ignoreGate := New(Config{MaxLinks: 5, BrokenLinksPolicy: BrokenIgnore}, &stubResolver{anchorText: "useful guide"})
	ignoreGate.MarkBroken([]string{target.URL})
	outcome = ignoreGate.Validate(context.Background(), Candidate{Source: source, Target: target})
	if !outcome.Accepted {
		t.Fatalf("ignore policy: expected acceptance, got %+v", outcome)
	}

	replaceGate := New(Config{MaxLinks: 5, BrokenLinksPolicy: BrokenReplace}, &stubResolver{anchorText: "useful guide"})
	replaceGate.MarkBroken([]string{target.URL})
	outcome = replaceGate.Validate(context.Background(), Candidate{
		Source:     source,
		Target:     target,
		Alternates: []corpus.Page{alternate},
	})
	if !outcome.Accepted {
		t.Fatalf("replace policy: expected acceptance with alternate, got %+v", outcome)
	}
	if outcome.Target.ID != alternate.ID {
		t.Fatalf("replace policy: expected substituted target, got %+v", outcome.Target)
	}

	noAlternate := New(Config{MaxLinks: 5, BrokenLinksPolicy: BrokenReplace}, &stubResolver{anchorText: "useful guide"})
	noAlternate.MarkBroken([]string{target.URL})
	outcome = noAlternate.Validate(context.Background(), Candidate{Source: source, Target: target})
	if outcome.Accepted || outcome.Reason != ReasonBrokenURL {
		t.Fatalf("replace policy without alternate: expected 404_url, got %+v", outcome)
	}
}

func TestValidateBudgetHoldsUnderConcurrency(t *testing.T) {
	resolver := &stubResolver{anchorText: "useful guide"}
	v := New(Config{MaxLinks: 3}, resolver)
	source := corpus.Page{ID: 1, URL: "https://site.test/source"}

	const attempts = 24
	var wg sync.WaitGroup
	accepted := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			target := corpus.Page{ID: int64(100 + i), URL: "https://site.test/target-" + string(rune('a'+i))}
			if outcome := v.Validate(context.Background(), Candidate{Source: source, Target: target}); outcome.Accepted {
				accepted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(accepted)
	count := 0
	for range accepted {
		count++
	}
	if count != 3 {
		t.Fatalf("expected exactly 3 accepted under concurrency, got %d", count)
	}
	if v.AcceptedCount(source.ID) != 3 {
		t.Fatalf("ledger mismatch: %d", v.AcceptedCount(source.ID))
	}
}

func TestSeedBudgetRestoresLedger(t *testing.T) {
	resolver := &stubResolver{anchorText: "useful guide"}
	v := New(Config{MaxLinks: 2}, resolver)
	v.SeedBudget(map[int64]int{1: 2})
	source, target := pair()
	outcome := v.Validate(context.Background(), Candidate{Source: source, Target: target})
	if outcome.Accepted || outcome.Reason != ReasonMaxLinks {
		t.Fatalf("expected seeded budget exhaustion, got %+v", outcome)
	}
}

func TestCannibalizationThresholds(t *testing.T) {
	cases := map[string]float64{
		SensitivityLow:    0.3,
		SensitivityMedium: 0.5,
		SensitivityHigh:   0.7,
		"bogus":           0.5,
		"":                0.5,
	}
	for level, want := range cases {
		if got := CannibalizationThreshold(level); got != want {
			t.Fatalf("threshold(%q) = %f, want %f", level, got, want)
		}
	}
}
