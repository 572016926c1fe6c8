// File path: internal/similarity/similarity.go
package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/linkforge/linkforge/internal/corpus"
)

// Scored pairs a target page with its similarity to a query and the
// structural bonus applied on top.
type Scored struct {
	Page       corpus.Page
	Similarity float64
	Bonus      float64
}

// Score is the ranking value: raw cosine similarity plus structural bonus.
func (s Scored) Score() float64 { return s.Similarity + s.Bonus }

// Cosine returns the cosine similarity of two vectors. Vectors of different
// dimensions are an error, never silently truncated.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// TopK ranks candidate pages against a query vector and keeps the best k at
// or above the similarity threshold. bonus may be nil. Ties on the combined
// score break toward the higher in-degree target, then the lexicographically
// smaller URL, so rankings are deterministic run to run.
func TopK(query []float32, pages []corpus.Page, vectors map[int64][]float32, k int, threshold float64, bonus func(corpus.Page) float64) ([]Scored, error) {
	if k <= 0 || len(pages) == 0 {
		return nil, nil
	}
	scored := make([]Scored, 0, len(pages))
	for _, page := range pages {
		vector, ok := vectors[page.ID]
		if !ok {
			continue
		}
		sim, err := Cosine(query, vector)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", page.URL, err)
		}
		if sim < threshold {
			continue
		}
		item := Scored{Page: page, Similarity: sim}
		if bonus != nil {
			item.Bonus = bonus(page)
		}
		scored = append(scored, item)
	}
	sort.Slice(scored, func(i, j int) bool {
		si, sj := scored[i].Score(), scored[j].Score()
		if si != sj {
			return si > sj
		}
		if scored[i].Page.InDegree != scored[j].Page.InDegree {
			return scored[i].Page.InDegree > scored[j].Page.InDegree
		}
		return scored[i].Page.URL < scored[j].Page.URL
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
