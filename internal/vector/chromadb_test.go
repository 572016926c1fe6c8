// File path: internal/vector/chromadb_test.go
package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/linkforge/linkforge/internal/corpus"
)

// fakeChroma implements the handful of ChromaDB endpoints the client uses.
type fakeChroma struct {
	mu          sync.Mutex
	collections int
	upserts     []map[string]interface{}
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/heartbeat":
		json.NewEncoder(w).Encode(map[string]int64{"nanosecond heartbeat": time.Now().UnixNano()})
	case r.URL.Path == "/api/v1/collections" && r.Method == http.MethodPost:
		f.mu.Lock()
		f.collections++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": "col-1"})
	case r.URL.Path == "/api/v1/collections/col-1/upsert":
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.upserts = append(f.upserts, payload)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/api/v1/collections/col-1/query":
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ids":       [][]string{{"2", "1"}},
			"distances": [][]float64{{0.1, 0.4}},
			"metadatas": [][]map[string]interface{}{{
				{"url": "https://site.test/b"},
				{"url": "https://site.test/a"},
			}},
		})
	default:
		http.NotFound(w, r)
	}
}

func newFakeClient(t *testing.T) (*Client, *fakeChroma) {
	t.Helper()
	fake := &fakeChroma{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, fake
}

func TestPing(t *testing.T) {
	client, _ := newFakeClient(t)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestUpsertPagesSkipsVectorlessAndCachesCollection(t *testing.T) {
	client, fake := newFakeClient(t)
	pages := []corpus.Page{
		{ID: 1, URL: "https://site.test/a", InDegree: 2},
		{ID: 2, URL: "https://site.test/b"},
	}
	vectors := map[int64][]float32{1: {1, 0}}

	if err := client.UpsertPages(context.Background(), "proj", pages, vectors); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := client.UpsertPages(context.Background(), "proj", pages, vectors); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.collections != 1 {
		t.Fatalf("expected one collection ensure, got %d", fake.collections)
	}
	if len(fake.upserts) != 2 {
		t.Fatalf("expected 2 upsert calls, got %d", len(fake.upserts))
	}
	ids, ok := fake.upserts[0]["ids"].([]interface{})
	if !ok || len(ids) != 1 || ids[0] != "1" {
		t.Fatalf("expected only the vectored page upserted, got %v", fake.upserts[0]["ids"])
	}
}

func TestSearchParsesResults(t *testing.T) {
	client, _ := newFakeClient(t)
	results, err := client.Search(context.Background(), "proj", []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].PageID != 2 || results[0].URL != "https://site.test/b" || results[0].Distance != 0.1 {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if results[1].PageID != 1 {
		t.Fatalf("unexpected second result %+v", results[1])
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error without base URL")
	}
}
