// File path: internal/linkgraph/service.go
package linkgraph

import (
	"sort"
	"strings"
	"sync"

	"github.com/linkforge/linkforge/internal/corpus"
)

// Metrics holds the derived link-graph measurements for one page URL.
type Metrics struct {
	InDegree   int
	OutDegree  int
	ClickDepth int
}

// unreachableDepth marks pages with no path from the root. Importers store it
// as-is; such pages are deep by definition for the depth-lift scenario.
const unreachableDepth = 99

// Service derives in/out-degree and click depth from the raw edge list of an
// import. It keeps an in-memory adjacency representation guarded by a RWMutex
// so the import handler and queries can overlap.
type Service struct {
	mu       sync.RWMutex
	outgoing map[string]map[string]struct{}
	incoming map[string]map[string]struct{}
	pages    map[string]struct{}
	rootURL  string
}

// NewService constructs an empty link-graph service. Call Refresh with the
// imported pages and edges before reading metrics.
func NewService() *Service {
	return &Service{
		outgoing: make(map[string]map[string]struct{}),
		incoming: make(map[string]map[string]struct{}),
		pages:    make(map[string]struct{}),
	}
}

// Refresh rebuilds the adjacency sets from the provided page URLs and edges.
// Edges pointing outside the page set are ignored; self-referencing edges do
// not count toward degree.
func (s *Service) Refresh(pageURLs []string, edges []corpus.Edge, rootURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outgoing = make(map[string]map[string]struct{})
	s.incoming = make(map[string]map[string]struct{})
	s.pages = make(map[string]struct{}, len(pageURLs))
	s.rootURL = corpus.NormalizeURL(rootURL)

	for _, url := range pageURLs {
		normalized := corpus.NormalizeURL(url)
		if normalized == "" {
			continue
		}
		s.pages[normalized] = struct{}{}
	}
	if s.rootURL == "" {
		s.rootURL = s.guessRootLocked()
	}
	for _, edge := range edges {
		from := corpus.NormalizeURL(edge.FromURL)
		to := corpus.NormalizeURL(edge.ToURL)
		if from == "" || to == "" || from == to {
			continue
		}
		if _, ok := s.pages[from]; !ok {
			continue
		}
		if _, ok := s.pages[to]; !ok {
			continue
		}
		if s.outgoing[from] == nil {
			s.outgoing[from] = make(map[string]struct{})
		}
		s.outgoing[from][to] = struct{}{}
		if s.incoming[to] == nil {
			s.incoming[to] = make(map[string]struct{})
		}
		s.incoming[to][from] = struct{}{}
	}
}

// MetricsFor returns the derived metrics for every known page URL.
func (s *Service) MetricsFor() map[string]Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	depths := s.clickDepthsLocked()
	out := make(map[string]Metrics, len(s.pages))
	for url := range s.pages {
		depth, ok := depths[url]
		if !ok {
			depth = unreachableDepth
		}
		out[url] = Metrics{
			InDegree:   len(s.incoming[url]),
			OutDegree:  len(s.outgoing[url]),
			ClickDepth: depth,
		}
	}
	return out
}

// Orphans returns the page URLs with zero incoming links, sorted for
// deterministic output.
func (s *Service) Orphans() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orphans := make([]string, 0)
	for url := range s.pages {
		if len(s.incoming[url]) == 0 && url != s.rootURL {
			orphans = append(orphans, url)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// Root returns the URL used as BFS origin for click-depth computation.
func (s *Service) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rootURL
}

// clickDepthsLocked runs a breadth-first traversal from the root. Callers
// must hold at least the read lock.
func (s *Service) clickDepthsLocked() map[string]int {
	depths := make(map[string]int, len(s.pages))
	if s.rootURL == "" {
		return depths
	}
	if _, ok := s.pages[s.rootURL]; !ok {
		return depths
	}
	depths[s.rootURL] = 0
	queue := []string{s.rootURL}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		next := depths[current] + 1
		neighbors := make([]string, 0, len(s.outgoing[current]))
		for neighbor := range s.outgoing[current] {
			neighbors = append(neighbors, neighbor)
		}
		sort.Strings(neighbors)
		for _, neighbor := range neighbors {
			if _, seen := depths[neighbor]; seen {
				continue
			}
			depths[neighbor] = next
			queue = append(queue, neighbor)
		}
	}
	return depths
}

// guessRootLocked picks the shortest URL as the site root when the importer
// did not name one. Callers must hold the write lock.
func (s *Service) guessRootLocked() string {
	root := ""
	for url := range s.pages {
		if root == "" {
			root = url
			continue
		}
		if len(url) < len(root) || (len(url) == len(root) && strings.Compare(url, root) < 0) {
			root = url
		}
	}
	return root
}
