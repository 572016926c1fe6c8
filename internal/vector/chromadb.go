// File path: internal/vector/chromadb.go
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/common/telemetry"
	"github.com/linkforge/linkforge/internal/corpus"
)

// Client mirrors page vectors into a ChromaDB-compatible index, one
// collection per project. The index is an approximate pre-narrowing tier;
// exact in-process ranking stays authoritative.
type Client struct {
	cfg    Config
	client *http.Client

	mu          sync.Mutex
	collections map[string]string
}

// SearchResult is one approximate neighbor from the index.
type SearchResult struct {
	PageID   int64
	URL      string
	Distance float64
}

func NewClient(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if !cfg.Enabled() {
		return nil, fmt.Errorf("vector index base URL not configured")
	}
	return &Client{
		cfg:         cfg,
		client:      &http.Client{Timeout: cfg.Timeout},
		collections: make(map[string]string),
	}, nil
}

// Ping verifies the index is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var out map[string]interface{}
	return c.do(ctx, http.MethodGet, "/api/v1/heartbeat", nil, &out)
}

// UpsertPages writes every page vector into the project collection. Pages
// without a vector are skipped.
func (c *Client) UpsertPages(ctx context.Context, projectID string, pages []corpus.Page, vectors map[int64][]float32) error {
	if c == nil {
		return nil
	}
	collectionID, err := c.ensureCollection(ctx, projectID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(pages))
	embeddings := make([][]float32, 0, len(pages))
	metadatas := make([]map[string]interface{}, 0, len(pages))
	for _, page := range pages {
		vector, ok := vectors[page.ID]
		if !ok {
			continue
		}
		ids = append(ids, strconv.FormatInt(page.ID, 10))
		embeddings = append(embeddings, vector)
		metadatas = append(metadatas, map[string]interface{}{
			"url":         page.URL,
			"click_depth": page.ClickDepth,
			"in_degree":   page.InDegree,
		})
	}
	if len(ids) == 0 {
		return nil
	}
	payload := map[string]interface{}{
		"ids":        ids,
		"embeddings": embeddings,
		"metadatas":  metadatas,
	}
	path := fmt.Sprintf("/api/v1/collections/%s/upsert", collectionID)
	if err := c.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("upsert %d pages: %w", len(ids), err)
	}
	common.Logger().Debug("vector: pages mirrored", "project", projectID, "pages", len(ids))
	return nil
}

// Search returns the approximate nearest pages to a query vector.
func (c *Client) Search(ctx context.Context, projectID string, query []float32, k int) ([]SearchResult, error) {
	if c == nil {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}
	collectionID, err := c.ensureCollection(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"query_embeddings": [][]float32{query},
		"n_results":        k,
		"include":          []string{"metadatas", "distances"},
	}
	var out struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
	}
	started := time.Now()
	path := fmt.Sprintf("/api/v1/collections/%s/query", collectionID)
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	telemetry.RecordVectorSearch(time.Since(started))
	if len(out.IDs) == 0 {
		return nil, nil
	}
	results := make([]SearchResult, 0, len(out.IDs[0]))
	for i, id := range out.IDs[0] {
		pageID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		result := SearchResult{PageID: pageID}
		if len(out.Distances) > 0 && i < len(out.Distances[0]) {
			result.Distance = out.Distances[0][i]
		}
		if len(out.Metadatas) > 0 && i < len(out.Metadatas[0]) {
			if url, ok := out.Metadatas[0][i]["url"].(string); ok {
				result.URL = url
			}
		}
		results = append(results, result)
	}
	return results, nil
}

func (c *Client) ensureCollection(ctx context.Context, projectID string) (string, error) {
	name := c.cfg.CollectionPrefix + "_" + projectID
	c.mu.Lock()
	if id, ok := c.collections[name]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	payload := map[string]interface{}{
		"name":          name,
		"get_or_create": true,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/collections", payload, &out); err != nil {
		return "", fmt.Errorf("ensure collection %s: %w", name, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("ensure collection %s: empty id", name)
	}
	c.mu.Lock()
	c.collections[name] = out.ID
	c.mu.Unlock()
	return out.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vector index request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vector index status %d: %s", resp.StatusCode, string(snippet))
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
