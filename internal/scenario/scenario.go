// File path: internal/scenario/scenario.go
package scenario

import (
	"fmt"
	"time"

	"github.com/linkforge/linkforge/internal/corpus"
)

// Scenario tags. These are the values persisted on candidates and accepted
// in start-generation requests.
const (
	Orphan     = "orphan"
	Head       = "head"
	Cluster    = "cluster"
	Commercial = "commercial"
	Depth      = "depth"
	Freshness  = "freshness"
)

// Names lists every scenario in its fixed execution order.
func Names() []string {
	return []string{Orphan, Head, Cluster, Commercial, Depth, Freshness}
}

// Known reports whether name is a defined scenario tag.
func Known(name string) bool {
	for _, known := range Names() {
		if known == name {
			return true
		}
	}
	return false
}

// Params carries the per-scenario tuning knobs. Zero values fall back to the
// defaults applied by normalize.
type Params struct {
	// TopN bounds similarity-ranked target lists (cluster cross-link and the
	// per-donor caps of head consolidation and commercial routing).
	TopN int
	// Threshold is the minimum cosine similarity for ranked pairings.
	Threshold float64
	// DepthThreshold marks pages at or beyond this click depth as deep.
	DepthThreshold int
	// DaysFresh is the freshness window for freshness push targets.
	DaysFresh int
	// LinksPerDonor caps freshness push proposals per donor page.
	LinksPerDonor int
	// HubURLs is the explicit hub list for head consolidation; when empty the
	// automatic in-degree threshold from corpus stats applies.
	HubURLs []string
	// PriorityURLs is the commercial routing money-page list.
	PriorityURLs []string
	// Now anchors the freshness window; the zero value means time.Now.
	Now time.Time
	// ClusterPool narrows cluster cross-link pools to approximate neighbor
	// page IDs per source, as returned by the vector index. A nil map or a
	// missing source keeps the exact full-corpus pool.
	ClusterPool map[int64][]int64
}

const (
	defaultTopN           = 5
	defaultDepthThreshold = 4
	defaultDaysFresh      = 30
	defaultLinksPerDonor  = 1

	orphanDonorCap = 2
	depthDonorCap  = 3
)

func (p Params) normalize() Params {
	if p.TopN <= 0 {
		p.TopN = defaultTopN
	}
	if p.DepthThreshold <= 0 {
		p.DepthThreshold = defaultDepthThreshold
	}
	if p.DaysFresh <= 0 {
		p.DaysFresh = defaultDaysFresh
	}
	if p.LinksPerDonor <= 0 {
		p.LinksPerDonor = defaultLinksPerDonor
	}
	if p.Now.IsZero() {
		p.Now = time.Now().UTC()
	}
	return p
}

// Proposal is one proposed (source, target) pair emitted by a scenario.
// Proposals carry no shared state: budget enforcement happens downstream.
type Proposal struct {
	SourcePageID int64
	TargetPageID int64
	Scenario     string
	Similarity   float64
}

// Func is a pure scenario rule: corpus in, proposals out.
type Func func(pages []corpus.Page, stats *corpus.Stats, vectors map[int64][]float32, params Params) ([]Proposal, error)

// ForName returns the rule function for a scenario tag.
func ForName(name string) (Func, error) {
	switch name {
	case Orphan:
		return OrphanFix, nil
	case Head:
		return HeadConsolidation, nil
	case Cluster:
		return ClusterCrossLink, nil
	case Commercial:
		return CommercialRouting, nil
	case Depth:
		return DepthLift, nil
	case Freshness:
		return FreshnessPush, nil
	default:
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
}
