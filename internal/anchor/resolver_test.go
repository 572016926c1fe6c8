// File path: internal/anchor/resolver_test.go
package anchor

import (
	"context"
	"errors"
	"testing"

	"github.com/linkforge/linkforge/internal/llm"
)

// scriptedProvider replies with a fixed chat response or error.
type scriptedProvider struct {
	reply string
	err   error
	last  []llm.Message
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	p.last = msgs
	return p.reply, p.err
}

func (p *scriptedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embed not supported")
}

func TestResolveReturnsSanitizedAnchor(t *testing.T) {
	provider := &scriptedProvider{reply: ` "internal linking guide." `}
	resolver := NewLLMResolver(provider, 0)
	got, err := resolver.Resolve(context.Background(), Request{
		SourceContext: "A passage about site structure.",
		TargetTitle:   "Internal Linking Guide",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "internal linking guide" {
		t.Fatalf("unexpected anchor %q", got)
	}
	if len(provider.last) != 2 || provider.last[0].Role != llm.RoleSystem {
		t.Fatalf("expected system+user messages, got %+v", provider.last)
	}
}

func TestResolveNoAnchorToken(t *testing.T) {
	resolver := NewLLMResolver(&scriptedProvider{reply: "NO_ANCHOR"}, 0)
	if _, err := resolver.Resolve(context.Background(), Request{TargetTitle: "T"}); !errors.Is(err, ErrNoAnchor) {
		t.Fatalf("expected ErrNoAnchor, got %v", err)
	}
}

func TestResolveProviderErrorCollapsesToNoAnchor(t *testing.T) {
	resolver := NewLLMResolver(&scriptedProvider{err: errors.New("rate limited")}, 0)
	if _, err := resolver.Resolve(context.Background(), Request{TargetTitle: "T"}); !errors.Is(err, ErrNoAnchor) {
		t.Fatalf("expected ErrNoAnchor, got %v", err)
	}
}

func TestResolveRejectsOverlongPhrases(t *testing.T) {
	resolver := NewLLMResolver(&scriptedProvider{
		reply: "this anchor phrase has far too many words to pass",
	}, 0)
	if _, err := resolver.Resolve(context.Background(), Request{TargetTitle: "T"}); !errors.Is(err, ErrNoAnchor) {
		t.Fatalf("expected ErrNoAnchor for long phrase, got %v", err)
	}
}

func TestResolveNilProvider(t *testing.T) {
	resolver := NewLLMResolver(nil, 0)
	if _, err := resolver.Resolve(context.Background(), Request{}); !errors.Is(err, ErrNoAnchor) {
		t.Fatalf("expected ErrNoAnchor, got %v", err)
	}
}

func TestSanitizeEdgeCases(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"learn more about sitemaps", "learn more about sitemaps", true},
		{"'quoted anchor'", "quoted anchor", true},
		{"", "", false},
		{"   ", "", false},
		{"no_anchor", "", false},
		{"I think NO_ANCHOR fits", "", false},
	}
	for _, tc := range cases {
		got, ok := sanitize(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("sanitize(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
