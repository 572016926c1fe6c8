// File path: internal/api/import_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/corpus"
	"github.com/linkforge/linkforge/internal/linkgraph"
	"github.com/linkforge/linkforge/internal/sqlite"
)

type importBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type importPage struct {
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Language    string        `json:"language"`
	PublishedAt *time.Time    `json:"published_at"`
	Blocks      []importBlock `json:"blocks"`
}

type importRequest struct {
	ProjectID string        `json:"project_id"`
	RootURL   string        `json:"root_url"`
	Pages     []importPage  `json:"pages"`
	Edges     []corpus.Edge `json:"edges"`
}

// handleImport accepts an already-parsed corpus (pages, text blocks, raw
// internal edges), derives the link-graph metrics and records a completed
// import. Crawling and HTML parsing stay outside this service.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id is required"))
		return
	}
	if len(req.Pages) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("at least one page is required"))
		return
	}
	seen := make(map[string]struct{}, len(req.Pages))
	urls := make([]string, 0, len(req.Pages))
	for _, page := range req.Pages {
		url := corpus.NormalizeURL(page.URL)
		if url == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("page url is required"))
			return
		}
		if _, dup := seen[url]; dup {
			writeError(w, http.StatusBadRequest, fmt.Errorf("duplicate page url %s", page.URL))
			return
		}
		seen[url] = struct{}{}
		urls = append(urls, page.URL)
	}

	graph := linkgraph.NewService()
	graph.Refresh(urls, req.Edges, req.RootURL)
	metrics := graph.MetricsFor()

	ctx := r.Context()
	importID, err := s.store.CreateImport(ctx, req.ProjectID, req.RootURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	orphans := 0
	for _, page := range req.Pages {
		m := metrics[corpus.NormalizeURL(page.URL)]
		words := 0
		blocks := make([]corpus.Block, 0, len(page.Blocks))
		for i, block := range page.Blocks {
			text := strings.TrimSpace(block.Text)
			if text == "" {
				continue
			}
			words += len(strings.Fields(text))
			blocks = append(blocks, corpus.Block{Type: block.Type, Text: text, Position: i})
		}
		record := corpus.Page{
			ProjectID:   req.ProjectID,
			ImportID:    importID,
			URL:         page.URL,
			Title:       strings.TrimSpace(page.Title),
			Language:    strings.TrimSpace(page.Language),
			ClickDepth:  m.ClickDepth,
			InDegree:    m.InDegree,
			OutDegree:   m.OutDegree,
			WordCount:   words,
			PublishedAt: page.PublishedAt,
		}
		if record.IsOrphan() {
			orphans++
		}
		pageID, err := s.store.InsertPage(ctx, record)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.store.InsertBlocks(ctx, pageID, blocks); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if err := s.store.CompleteImport(ctx, importID, len(req.Pages)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	common.Logger().Info("api: corpus imported",
		"project", req.ProjectID, "import", importID, "pages", len(req.Pages), "orphans", orphans)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"import_id":    importID,
		"page_count":   len(req.Pages),
		"orphan_count": orphans,
	})
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id is required"))
		return
	}
	imp, err := s.store.LatestCompletedImport(r.Context(), projectID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sqlite.ErrNoCompletedImport) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	pages, err := s.store.PagesForImport(r.Context(), imp.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"import_id": imp.ID,
		"pages":     pages,
	})
}
