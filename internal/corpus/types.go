// File path: internal/corpus/types.go
package corpus

import "time"

// Page represents one imported page of the corpus. Pages are owned by the
// import subsystem and read-only to the generation engine.
type Page struct {
	ID          int64      `json:"id" db:"id"`
	ProjectID   string     `json:"project_id" db:"project_id"`
	ImportID    int64      `json:"import_id" db:"import_id"`
	URL         string     `json:"url" db:"url"`
	Title       string     `json:"title,omitempty" db:"title"`
	Language    string     `json:"language,omitempty" db:"language"`
	ClickDepth  int        `json:"click_depth" db:"click_depth"`
	InDegree    int        `json:"in_degree" db:"in_degree"`
	OutDegree   int        `json:"out_degree" db:"out_degree"`
	WordCount   int        `json:"word_count" db:"word_count"`
	PublishedAt *time.Time `json:"published_at,omitempty" db:"published_at"`
}

// IsOrphan reports whether the page has no incoming internal links.
func (p Page) IsOrphan() bool {
	return p.InDegree == 0
}

// Block is a segmented text unit of a page, produced upstream by the HTML
// cleaning pipeline.
type Block struct {
	ID       int64  `json:"id" db:"id"`
	PageID   int64  `json:"page_id" db:"page_id"`
	Type     string `json:"type" db:"type"`
	Text     string `json:"text" db:"text"`
	Position int    `json:"position" db:"position"`
}

// Block types emitted by the segmentation pipeline.
const (
	BlockHeading        = "heading"
	BlockParagraphGroup = "paragraph-group"
	BlockList           = "list"
)

// Edge is a raw internal link between two imported pages, identified by URL.
type Edge struct {
	FromURL string `json:"from_url"`
	ToURL   string `json:"to_url"`
}

// Stats aggregates link-graph measurements for one imported corpus snapshot.
type Stats struct {
	PageCount     int
	OrphanCount   int
	MaxInDegree   int
	MeanInDegree  float64
	HubThreshold  int
	MaxClickDepth int
	PriorityURLs  map[string]struct{}
	HubPageIDs    map[int64]struct{}
	PagesByID     map[int64]Page
	PagesByURL    map[string]Page
	NewestPublish *time.Time
	OldestPublish *time.Time
}
