// File path: internal/embedding/cache_test.go
package embedding

import "testing"

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewCache(2)
	cache.Put("proj", "a", []float32{1})
	cache.Put("proj", "b", []float32{2})
	if _, ok := cache.Get("proj", "a"); !ok {
		t.Fatalf("expected a cached")
	}
	// a is now most recent, so inserting c evicts b.
	cache.Put("proj", "c", []float32{3})
	if _, ok := cache.Get("proj", "b"); ok {
		t.Fatalf("expected b evicted")
	}
	if _, ok := cache.Get("proj", "a"); !ok {
		t.Fatalf("expected a retained")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
}

func TestCacheIsolatesProjects(t *testing.T) {
	cache := NewCache(8)
	cache.Put("proj-1", "hash", []float32{1})
	if _, ok := cache.Get("proj-2", "hash"); ok {
		t.Fatalf("expected miss across projects")
	}
}

func TestCacheIgnoresEmptyVectors(t *testing.T) {
	cache := NewCache(8)
	cache.Put("proj", "hash", nil)
	if _, ok := cache.Get("proj", "hash"); ok {
		t.Fatalf("expected empty vector to be dropped")
	}
}
