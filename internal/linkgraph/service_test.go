// File path: internal/linkgraph/service_test.go
package linkgraph

import (
	"testing"

	"github.com/linkforge/linkforge/internal/corpus"
)

func testEdges() []corpus.Edge {
	return []corpus.Edge{
		{FromURL: "https://site.test/", ToURL: "https://site.test/a"},
		{FromURL: "https://site.test/", ToURL: "https://site.test/b"},
		{FromURL: "https://site.test/a", ToURL: "https://site.test/deep"},
		{FromURL: "https://site.test/a", ToURL: "https://site.test/a"},
		{FromURL: "https://site.test/b", ToURL: "https://external.test/x"},
	}
}

func testPages() []string {
	return []string{
		"https://site.test/",
		"https://site.test/a",
		"https://site.test/b",
		"https://site.test/deep",
		"https://site.test/orphan",
	}
}

func TestMetricsForDerivesDegreesAndDepth(t *testing.T) {
	svc := NewService()
	svc.Refresh(testPages(), testEdges(), "https://site.test/")
	metrics := svc.MetricsFor()

	root := metrics["https://site.test"]
	if root.ClickDepth != 0 || root.OutDegree != 2 {
		t.Fatalf("unexpected root metrics: %+v", root)
	}
	a := metrics["https://site.test/a"]
	if a.InDegree != 1 || a.OutDegree != 1 || a.ClickDepth != 1 {
		t.Fatalf("unexpected metrics for /a: %+v", a)
	}
	deep := metrics["https://site.test/deep"]
	if deep.ClickDepth != 2 || deep.InDegree != 1 {
		t.Fatalf("unexpected metrics for /deep: %+v", deep)
	}
	orphan := metrics["https://site.test/orphan"]
	if orphan.InDegree != 0 || orphan.ClickDepth != unreachableDepth {
		t.Fatalf("unexpected metrics for orphan: %+v", orphan)
	}
}

func TestRefreshIgnoresEdgesOutsidePageSet(t *testing.T) {
	svc := NewService()
	svc.Refresh(testPages(), testEdges(), "https://site.test/")
	b := svc.MetricsFor()["https://site.test/b"]
	if b.OutDegree != 0 {
		t.Fatalf("edge to external page should not count, got out-degree %d", b.OutDegree)
	}
}

func TestOrphansExcludesRoot(t *testing.T) {
	svc := NewService()
	svc.Refresh(testPages(), testEdges(), "https://site.test/")
	orphans := svc.Orphans()
	if len(orphans) != 1 || orphans[0] != "https://site.test/orphan" {
		t.Fatalf("unexpected orphans: %v", orphans)
	}
}

func TestGuessRootPicksShortestURL(t *testing.T) {
	svc := NewService()
	svc.Refresh(testPages(), testEdges(), "")
	if root := svc.Root(); root != "https://site.test" {
		t.Fatalf("unexpected guessed root: %s", root)
	}
}
