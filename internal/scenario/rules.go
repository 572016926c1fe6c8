// File path: internal/scenario/rules.go
package scenario

import (
	"sort"

	"github.com/linkforge/linkforge/internal/corpus"
	"github.com/linkforge/linkforge/internal/similarity"
)

// OrphanFix proposes links into pages with no incoming internal links.
// Donors are the highest in-degree non-orphan pages; each orphan gets at
// most two donors so it is discoverable without flooding it.
func OrphanFix(pages []corpus.Page, stats *corpus.Stats, vectors map[int64][]float32, params Params) ([]Proposal, error) {
	params = params.normalize()
	donors := make([]corpus.Page, 0, len(pages))
	orphans := make([]corpus.Page, 0)
	for _, page := range pages {
		if page.IsOrphan() {
			orphans = append(orphans, page)
		} else {
			donors = append(donors, page)
		}
	}
	sort.Slice(donors, func(i, j int) bool {
		if donors[i].InDegree != donors[j].InDegree {
			return donors[i].InDegree > donors[j].InDegree
		}
		return donors[i].URL < donors[j].URL
	})
	sortPagesByURL(orphans)

	proposals := make([]Proposal, 0, len(orphans)*orphanDonorCap)
	for _, orphan := range orphans {
		taken := 0
		for _, donor := range donors {
			if taken >= orphanDonorCap {
				break
			}
			if donor.ID == orphan.ID {
				continue
			}
			proposals = append(proposals, Proposal{
				SourcePageID: donor.ID,
				TargetPageID: orphan.ID,
				Scenario:     Orphan,
				Similarity:   pairSimilarity(vectors, donor.ID, orphan.ID),
			})
			taken++
		}
	}
	return proposals, nil
}

// HeadConsolidation routes authority into hub pages from pages of the same
// topical cluster. Hubs come from the explicit list when configured,
// otherwise from the automatic in-degree threshold in corpus stats.
func HeadConsolidation(pages []corpus.Page, stats *corpus.Stats, vectors map[int64][]float32, params Params) ([]Proposal, error) {
	params = params.normalize()
	hubIDs := make(map[int64]struct{})
	if len(params.HubURLs) > 0 {
		byURL := make(map[string]struct{}, len(params.HubURLs))
		for _, raw := range params.HubURLs {
			byURL[corpus.NormalizeURL(raw)] = struct{}{}
		}
		for _, page := range pages {
			if _, ok := byURL[corpus.NormalizeURL(page.URL)]; ok {
				hubIDs[page.ID] = struct{}{}
			}
		}
	} else if stats != nil {
		hubIDs = stats.HubPageIDs
	}
	if len(hubIDs) == 0 {
		return nil, nil
	}

	hubs := make([]corpus.Page, 0, len(hubIDs))
	for _, page := range pages {
		if _, ok := hubIDs[page.ID]; ok {
			hubs = append(hubs, page)
		}
	}
	sortPagesByURL(hubs)

	proposals := []Proposal{}
	for _, hub := range hubs {
		cluster := corpus.PathPrefix(hub.URL)
		donors := make([]corpus.Page, 0)
		for _, page := range pages {
			if page.ID == hub.ID {
				continue
			}
			if _, isHub := hubIDs[page.ID]; isHub {
				continue
			}
			if corpus.PathPrefix(page.URL) != cluster {
				continue
			}
			donors = append(donors, page)
		}
		ranked, err := rankTowardTarget(hub, donors, vectors, params.TopN, params.Threshold, stats)
		if err != nil {
			return nil, err
		}
		for _, item := range ranked {
			proposals = append(proposals, Proposal{
				SourcePageID: item.Page.ID,
				TargetPageID: hub.ID,
				Scenario:     Head,
				Similarity:   item.Similarity,
			})
		}
	}
	return proposals, nil
}

// ClusterCrossLink proposes, for every page, links to its most similar
// peers regardless of orphan or hub status. When params.ClusterPool carries
// approximate neighbors for a source, only those pages are ranked.
func ClusterCrossLink(pages []corpus.Page, stats *corpus.Stats, vectors map[int64][]float32, params Params) ([]Proposal, error) {
	params = params.normalize()
	sorted := append([]corpus.Page(nil), pages...)
	sortPagesByURL(sorted)

	proposals := []Proposal{}
	for _, source := range sorted {
		query, ok := vectors[source.ID]
		if !ok {
			continue
		}
		pool := make([]corpus.Page, 0, len(sorted)-1)
		if neighbors, ok := params.ClusterPool[source.ID]; ok && len(neighbors) > 0 {
			allowed := make(map[int64]struct{}, len(neighbors))
			for _, id := range neighbors {
				allowed[id] = struct{}{}
			}
			for _, page := range sorted {
				if page.ID == source.ID {
					continue
				}
				if _, ok := allowed[page.ID]; ok {
					pool = append(pool, page)
				}
			}
		} else {
			for _, page := range sorted {
				if page.ID != source.ID {
					pool = append(pool, page)
				}
			}
		}
		ranked, err := similarity.TopK(query, pool, vectors, params.TopN, params.Threshold, bonusFunc(source, stats))
		if err != nil {
			return nil, err
		}
		for _, item := range ranked {
			proposals = append(proposals, Proposal{
				SourcePageID: source.ID,
				TargetPageID: item.Page.ID,
				Scenario:     Cluster,
				Similarity:   item.Similarity,
			})
		}
	}
	return proposals, nil
}

// CommercialRouting funnels links from editorial pages into the configured
// priority (money) pages. Without at least one priority page in the corpus
// the scenario contributes nothing.
func CommercialRouting(pages []corpus.Page, stats *corpus.Stats, vectors map[int64][]float32, params Params) ([]Proposal, error) {
	params = params.normalize()
	if len(params.PriorityURLs) == 0 {
		return nil, nil
	}
	priority := make(map[string]struct{}, len(params.PriorityURLs))
	for _, raw := range params.PriorityURLs {
		priority[corpus.NormalizeURL(raw)] = struct{}{}
	}
	targets := make([]corpus.Page, 0)
	donors := make([]corpus.Page, 0, len(pages))
	for _, page := range pages {
		if _, ok := priority[corpus.NormalizeURL(page.URL)]; ok {
			targets = append(targets, page)
		} else {
			donors = append(donors, page)
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}
	sortPagesByURL(donors)

	proposals := []Proposal{}
	for _, donor := range donors {
		query, ok := vectors[donor.ID]
		if !ok {
			continue
		}
		ranked, err := similarity.TopK(query, targets, vectors, params.TopN, params.Threshold, bonusFunc(donor, stats))
		if err != nil {
			return nil, err
		}
		for _, item := range ranked {
			proposals = append(proposals, Proposal{
				SourcePageID: donor.ID,
				TargetPageID: item.Page.ID,
				Scenario:     Commercial,
				Similarity:   item.Similarity,
			})
		}
	}
	return proposals, nil
}

// DepthLift shortens click paths to deep pages by proposing links from
// shallow pages (clickDepth <= 2), at most three donors per deep page.
func DepthLift(pages []corpus.Page, stats *corpus.Stats, vectors map[int64][]float32, params Params) ([]Proposal, error) {
	params = params.normalize()
	deep := make([]corpus.Page, 0)
	shallow := make([]corpus.Page, 0)
	for _, page := range pages {
		switch {
		case page.ClickDepth >= params.DepthThreshold:
			deep = append(deep, page)
		case page.ClickDepth <= 2:
			shallow = append(shallow, page)
		}
	}
	sortPagesByURL(deep)

	proposals := []Proposal{}
	for _, target := range deep {
		ranked, err := rankTowardTarget(target, shallow, vectors, depthDonorCap, params.Threshold, stats)
		if err != nil {
			return nil, err
		}
		for _, item := range ranked {
			proposals = append(proposals, Proposal{
				SourcePageID: item.Page.ID,
				TargetPageID: target.ID,
				Scenario:     Depth,
				Similarity:   item.Similarity,
			})
		}
	}
	return proposals, nil
}

// FreshnessPush surfaces recently published pages from older content, with a
// per-donor cap so no evergreen page turns into a link farm.
func FreshnessPush(pages []corpus.Page, stats *corpus.Stats, vectors map[int64][]float32, params Params) ([]Proposal, error) {
	params = params.normalize()
	cutoff := params.Now.AddDate(0, 0, -params.DaysFresh)
	fresh := make([]corpus.Page, 0)
	older := make([]corpus.Page, 0)
	for _, page := range pages {
		if page.PublishedAt == nil {
			continue
		}
		if page.PublishedAt.After(cutoff) {
			fresh = append(fresh, page)
		} else {
			older = append(older, page)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	sortPagesByURL(older)

	proposals := []Proposal{}
	for _, donor := range older {
		query, ok := vectors[donor.ID]
		if !ok {
			continue
		}
		ranked, err := similarity.TopK(query, fresh, vectors, params.LinksPerDonor, params.Threshold, bonusFunc(donor, stats))
		if err != nil {
			return nil, err
		}
		for _, item := range ranked {
			proposals = append(proposals, Proposal{
				SourcePageID: donor.ID,
				TargetPageID: item.Page.ID,
				Scenario:     Freshness,
				Similarity:   item.Similarity,
			})
		}
	}
	return proposals, nil
}

// rankTowardTarget ranks candidate donor pages by similarity to a fixed
// target page.
func rankTowardTarget(target corpus.Page, donors []corpus.Page, vectors map[int64][]float32, k int, threshold float64, stats *corpus.Stats) ([]similarity.Scored, error) {
	query, ok := vectors[target.ID]
	if !ok {
		// No vector for the target: fall back to in-degree order so the
		// scenario still functions on partially embedded corpora.
		sorted := append([]corpus.Page(nil), donors...)
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].InDegree != sorted[j].InDegree {
				return sorted[i].InDegree > sorted[j].InDegree
			}
			return sorted[i].URL < sorted[j].URL
		})
		if len(sorted) > k {
			sorted = sorted[:k]
		}
		out := make([]similarity.Scored, 0, len(sorted))
		for _, page := range sorted {
			out = append(out, similarity.Scored{Page: page})
		}
		return out, nil
	}
	return similarity.TopK(query, donors, vectors, k, threshold, bonusFunc(target, stats))
}

func bonusFunc(source corpus.Page, stats *corpus.Stats) func(corpus.Page) float64 {
	return func(target corpus.Page) float64 {
		return similarity.StructuralBonus(source, target, stats)
	}
}

func pairSimilarity(vectors map[int64][]float32, a, b int64) float64 {
	va, okA := vectors[a]
	vb, okB := vectors[b]
	if !okA || !okB {
		return 0
	}
	sim, err := similarity.Cosine(va, vb)
	if err != nil {
		return 0
	}
	return sim
}

func sortPagesByURL(pages []corpus.Page) {
	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })
}
