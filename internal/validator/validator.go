// File path: internal/validator/validator.go
package validator

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/linkforge/linkforge/internal/anchor"
	"github.com/linkforge/linkforge/internal/corpus"
)

// Rejection reason codes, in gate order. The first failing gate wins and its
// code is persisted on the candidate.
const (
	ReasonSelfLink        = "self_link"
	ReasonMaxLinks        = "max_links_exceeded"
	ReasonDuplicate       = "duplicate_url"
	ReasonCannibalization = "cannibalization"
	ReasonNoAnchor        = "no_natural_anchor"
	ReasonStopAnchor      = "stop_anchor"
	ReasonBrokenURL       = "404_url"
)

// Cannibalization sensitivity levels and their content-overlap thresholds.
const (
	SensitivityLow    = "low"
	SensitivityMedium = "medium"
	SensitivityHigh   = "high"
)

// Broken-link policies.
const (
	BrokenDelete  = "delete"
	BrokenReplace = "replace"
	BrokenIgnore  = "ignore"
)

// CannibalizationThreshold maps a sensitivity level to its overlap cutoff.
// Unknown levels fall back to medium.
func CannibalizationThreshold(level string) float64 {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case SensitivityLow:
		return 0.3
	case SensitivityHigh:
		return 0.7
	default:
		return 0.5
	}
}

// Config holds the rule set a run validates against.
type Config struct {
	MaxLinks             int
	DedupeLinks          bool
	StopAnchors          []string
	Cannibalization      bool
	CannibalizationLevel string
	BrokenLinksPolicy    string
}

// Candidate is one proposed link entering the gate. Overlap is the
// content-overlap score between source and target, computed by the caller
// from page vectors.
type Candidate struct {
	Source            corpus.Page
	Target            corpus.Page
	Scenario          string
	Similarity        float64
	Overlap           float64
	SourceContext     string
	TargetDescription string
	// Alternates are fallback targets in rank order, consulted only by the
	// replace broken-link policy.
	Alternates []corpus.Page
}

// Outcome is the gate verdict. When Accepted, Target reflects any broken-link
// replacement and Anchor carries the resolved text.
type Outcome struct {
	Accepted bool
	Reason   string
	Anchor   string
	Target   corpus.Page
}

// Validator applies the constraint gate and owns all per-run mutable state:
// the per-source budget ledger, the dedupe set and the broken-URL set.
// Scenario functions stay pure; every reservation happens here, atomically.
type Validator struct {
	cfg      Config
	resolver anchor.Resolver

	mu       sync.Mutex
	accepted map[int64]int
	seen     map[string]struct{}
	broken   map[string]struct{}
}

func New(cfg Config, resolver anchor.Resolver) *Validator {
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 3
	}
	return &Validator{
		cfg:      cfg,
		resolver: resolver,
		accepted: make(map[int64]int),
		seen:     make(map[string]struct{}),
		broken:   make(map[string]struct{}),
	}
}

// SeedBudget preloads the accepted-count ledger, used when resuming counters
// from persisted candidates.
func (v *Validator) SeedBudget(counts map[int64]int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, count := range counts {
		v.accepted[id] = count
	}
}

// MarkBroken records URLs the link checker found unreachable.
func (v *Validator) MarkBroken(urls []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, url := range urls {
		v.broken[corpus.NormalizeURL(url)] = struct{}{}
	}
}

// IsBroken reports whether a URL is on the broken list.
func (v *Validator) IsBroken(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.broken[corpus.NormalizeURL(url)]
	return ok
}

// AcceptedCount returns the budget ledger entry for a source page.
func (v *Validator) AcceptedCount(sourceID int64) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.accepted[sourceID]
}

// Validate runs the gate in fixed order: self-link, budget, duplicate,
// cannibalization, anchor resolution, stop-anchor, broken-link policy. The
// cheap structural gates run before the anchor call so provider traffic is
// not wasted on candidates that cannot pass. Acceptance re-checks budget and
// duplicate under the ledger lock and reserves both in the same critical
// section, which keeps the max-links invariant correct under donor
// parallelism.
func (v *Validator) Validate(ctx context.Context, cand Candidate) Outcome {
	reject := func(reason string) Outcome {
		return Outcome{Reason: reason, Target: cand.Target}
	}

	// Gate 1: self-link.
	if cand.Source.ID == cand.Target.ID {
		return reject(ReasonSelfLink)
	}
	// Gates 2 and 3 pre-checked without reserving; re-checked on accept.
	if reason, ok := v.precheck(cand.Source.ID, cand.Target.URL); !ok {
		return reject(reason)
	}
	// Gate 4: cannibalization.
	if v.cfg.Cannibalization && cand.Overlap > CannibalizationThreshold(v.cfg.CannibalizationLevel) {
		return reject(ReasonCannibalization)
	}
	// Gate 5: anchor resolution. Resolver failure is a candidate rejection.
	anchorText, err := v.resolve(ctx, cand.SourceContext, cand.Target)
	if err != nil {
		return reject(ReasonNoAnchor)
	}
	// Gate 6: stop-anchor list.
	if v.hitsStopAnchor(anchorText) {
		return reject(ReasonStopAnchor)
	}
	// Gate 7: broken-link policy.
	target := cand.Target
	if v.IsBroken(target.URL) {
		switch strings.ToLower(strings.TrimSpace(v.cfg.BrokenLinksPolicy)) {
		case BrokenIgnore:
			// proceed with the original target
		case BrokenReplace:
			replaced, replacedAnchor, ok := v.replaceTarget(ctx, cand)
			if !ok {
				return reject(ReasonBrokenURL)
			}
			target = replaced
			anchorText = replacedAnchor
		default:
			return reject(ReasonBrokenURL)
		}
	}

	if reason, ok := v.reserve(cand.Source.ID, target.URL); !ok {
		return Outcome{Reason: reason, Target: target}
	}
	return Outcome{Accepted: true, Anchor: anchorText, Target: target}
}

func (v *Validator) precheck(sourceID int64, targetURL string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.accepted[sourceID] >= v.cfg.MaxLinks {
		return ReasonMaxLinks, false
	}
	if v.cfg.DedupeLinks {
		if _, dup := v.seen[dedupeKey(sourceID, targetURL)]; dup {
			return ReasonDuplicate, false
		}
	}
	return "", true
}

// reserve atomically re-checks budget and duplicate, then claims both.
func (v *Validator) reserve(sourceID int64, targetURL string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.accepted[sourceID] >= v.cfg.MaxLinks {
		return ReasonMaxLinks, false
	}
	key := dedupeKey(sourceID, targetURL)
	if v.cfg.DedupeLinks {
		if _, dup := v.seen[key]; dup {
			return ReasonDuplicate, false
		}
	}
	v.accepted[sourceID]++
	v.seen[key] = struct{}{}
	return "", true
}

func (v *Validator) resolve(ctx context.Context, sourceContext string, target corpus.Page) (string, error) {
	if v.resolver == nil {
		return "", anchor.ErrNoAnchor
	}
	anchorText, err := v.resolver.Resolve(ctx, anchor.Request{
		SourceContext:     sourceContext,
		TargetTitle:       target.Title,
		TargetDescription: target.URL,
	})
	if err != nil {
		// Timeouts and provider failures collapse to no-anchor here; they are
		// per-candidate events, never run failures.
		return "", anchor.ErrNoAnchor
	}
	return anchorText, nil
}

// replaceTarget walks the rank-ordered alternates looking for a reachable
// target that still yields a usable anchor.
func (v *Validator) replaceTarget(ctx context.Context, cand Candidate) (corpus.Page, string, bool) {
	for _, alt := range cand.Alternates {
		if alt.ID == cand.Source.ID || v.IsBroken(alt.URL) {
			continue
		}
		anchorText, err := v.resolve(ctx, cand.SourceContext, alt)
		if err != nil || v.hitsStopAnchor(anchorText) {
			continue
		}
		return alt, anchorText, true
	}
	return corpus.Page{}, "", false
}

func (v *Validator) hitsStopAnchor(anchorText string) bool {
	lowered := strings.ToLower(anchorText)
	for _, stop := range v.cfg.StopAnchors {
		stop = strings.ToLower(strings.TrimSpace(stop))
		if stop != "" && strings.Contains(lowered, stop) {
			return true
		}
	}
	return false
}

func dedupeKey(sourceID int64, targetURL string) string {
	return strconv.FormatInt(sourceID, 10) + "#" + corpus.NormalizeURL(targetURL)
}
