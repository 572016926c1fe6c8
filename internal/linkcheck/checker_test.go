// File path: internal/linkcheck/checker_test.go
package linkcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestCheckReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewChecker(Config{})
	if !checker.Check(context.Background(), srv.URL) {
		t.Fatalf("expected %s reachable", srv.URL)
	}
}

func TestCheckNotFoundIsBroken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	checker := NewChecker(Config{})
	if checker.Check(context.Background(), srv.URL+"/missing") {
		t.Fatalf("expected 404 to count as broken")
	}
}

func TestCheckFallsBackToGetWhenHeadRefused(t *testing.T) {
	var mu sync.Mutex
	methods := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewChecker(Config{})
	if !checker.Check(context.Background(), srv.URL) {
		t.Fatalf("expected GET fallback to succeed")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(methods) != 2 || methods[0] != http.MethodHead || methods[1] != http.MethodGet {
		t.Fatalf("expected HEAD then GET, got %v", methods)
	}
}

func TestCheckUnreachableHostIsBroken(t *testing.T) {
	checker := NewChecker(Config{})
	if checker.Check(context.Background(), "http://127.0.0.1:1/unreachable") {
		t.Fatalf("expected connection failure to count as broken")
	}
}

func TestCheckAllReturnsSortedBrokenURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	checker := NewChecker(Config{Concurrency: 2})
	urls := []string{srv.URL + "/zz-gone", srv.URL + "/ok", srv.URL + "/aa-gone"}
	broken, err := checker.CheckAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("check all: %v", err)
	}
	want := []string{srv.URL + "/aa-gone", srv.URL + "/zz-gone"}
	if len(broken) != len(want) {
		t.Fatalf("expected %d broken, got %v", len(want), broken)
	}
	for i := range want {
		if broken[i] != want[i] {
			t.Fatalf("expected sorted %v, got %v", want, broken)
		}
	}
}

func TestCheckAllEmptyInput(t *testing.T) {
	checker := NewChecker(Config{})
	broken, err := checker.CheckAll(context.Background(), nil)
	if err != nil || broken != nil {
		t.Fatalf("expected nil result for empty input, got %v / %v", broken, err)
	}
}
