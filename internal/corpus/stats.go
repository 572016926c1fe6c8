// File path: internal/corpus/stats.go
package corpus

import (
	"sort"
	"strings"
)

// ComputeStats derives the corpus-level measurements the scenario engine
// consumes. Hub detection uses the 90th percentile of in-degree so corpora
// without an explicit hub list still get consolidation targets.
func ComputeStats(pages []Page, priorityURLs []string) Stats {
	stats := Stats{
		PageCount:    len(pages),
		PriorityURLs: make(map[string]struct{}, len(priorityURLs)),
		HubPageIDs:   make(map[int64]struct{}),
		PagesByID:    make(map[int64]Page, len(pages)),
		PagesByURL:   make(map[string]Page, len(pages)),
	}
	for _, raw := range priorityURLs {
		trimmed := NormalizeURL(raw)
		if trimmed != "" {
			stats.PriorityURLs[trimmed] = struct{}{}
		}
	}

	degrees := make([]int, 0, len(pages))
	var degreeSum int
	for _, page := range pages {
		stats.PagesByID[page.ID] = page
		stats.PagesByURL[NormalizeURL(page.URL)] = page
		if page.IsOrphan() {
			stats.OrphanCount++
		}
		if page.InDegree > stats.MaxInDegree {
			stats.MaxInDegree = page.InDegree
		}
		if page.ClickDepth > stats.MaxClickDepth {
			stats.MaxClickDepth = page.ClickDepth
		}
		degreeSum += page.InDegree
		degrees = append(degrees, page.InDegree)
		if page.PublishedAt != nil {
			ts := *page.PublishedAt
			if stats.NewestPublish == nil || ts.After(*stats.NewestPublish) {
				published := ts
				stats.NewestPublish = &published
			}
			if stats.OldestPublish == nil || ts.Before(*stats.OldestPublish) {
				published := ts
				stats.OldestPublish = &published
			}
		}
	}
	if len(pages) > 0 {
		stats.MeanInDegree = float64(degreeSum) / float64(len(pages))
	}

	stats.HubThreshold = hubThreshold(degrees)
	for _, page := range pages {
		if stats.HubThreshold > 0 && page.InDegree >= stats.HubThreshold {
			stats.HubPageIDs[page.ID] = struct{}{}
		}
	}
	return stats
}

// IsPriority reports whether the page URL appears on the configured priority
// list.
func (s Stats) IsPriority(page Page) bool {
	if len(s.PriorityURLs) == 0 {
		return false
	}
	_, ok := s.PriorityURLs[NormalizeURL(page.URL)]
	return ok
}

// hubThreshold returns the 90th-percentile in-degree, or zero when the
// corpus is too small for a meaningful cut.
func hubThreshold(degrees []int) int {
	if len(degrees) < 5 {
		return 0
	}
	sorted := append([]int(nil), degrees...)
	sort.Ints(sorted)
	idx := (len(sorted) * 9) / 10
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	threshold := sorted[idx]
	if threshold < 2 {
		return 0
	}
	return threshold
}

// NormalizeURL canonicalizes a URL for identity comparisons: lowercase
// scheme and host handling is left to the importer; here only whitespace and
// trailing slashes are stripped.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimSuffix(trimmed, "/")
	return strings.ToLower(trimmed)
}

// PathPrefix extracts the first path segment of a URL, used as the topical
// cluster key and for the structural proximity bonus.
func PathPrefix(rawURL string) string {
	url := NormalizeURL(rawURL)
	if idx := strings.Index(url, "://"); idx >= 0 {
		url = url[idx+3:]
	}
	slash := strings.Index(url, "/")
	if slash < 0 {
		return ""
	}
	rest := url[slash+1:]
	if next := strings.Index(rest, "/"); next >= 0 {
		rest = rest[:next]
	}
	return rest
}
