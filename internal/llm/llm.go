// File path: internal/llm/llm.go
package llm

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles understood by every provider.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Provider abstracts the model backend used for embeddings and anchor
// resolution. Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Chat(ctx context.Context, msgs []Message) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrNotConfigured is returned by NewProvider when no usable backend is
// available.
var ErrNotConfigured = errors.New("llm provider not configured")

// NewProvider selects a backend from the environment. OPENAI_API_KEY (or a
// custom OPENAI_ENDPOINT) selects the OpenAI-compatible client; otherwise
// LLM_PROVIDER=local selects the deterministic offline provider used in
// development and tests.
func NewProvider() (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	switch name {
	case "", "openai":
		key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT"))
		if key == "" && endpoint == "" {
			if name == "openai" {
				return nil, ErrNotConfigured
			}
			return NewLocalProvider(), nil
		}
		return NewOpenAIProvider(key, endpoint)
	case "local":
		return NewLocalProvider(), nil
	default:
		return nil, ErrNotConfigured
	}
}
