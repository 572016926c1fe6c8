// File path: internal/embedding/normalize_test.go
package embedding

import "testing"

func TestNormalizeTextStripsMarkupAndWhitespace(t *testing.T) {
	in := "  <p>Hello   <b>World</b></p>\n\tagain. "
	want := "hello world again"
	if got := NormalizeText(in); got != want {
		t.Fatalf("NormalizeText(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeTextDropsTrailingPunctuation(t *testing.T) {
	if got := NormalizeText("Ready, set, go!!"); got != "ready, set, go" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestTextHashIsStableAcrossFormatting(t *testing.T) {
	a := TextHash("<h1>Internal Linking</h1>")
	b := TextHash("  internal   LINKING.  ")
	if a != b {
		t.Fatalf("expected identical hashes for equivalent text: %s vs %s", a, b)
	}
	if a == TextHash("different text") {
		t.Fatalf("expected distinct hashes for distinct text")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha-256, got %d chars", len(a))
	}
}
