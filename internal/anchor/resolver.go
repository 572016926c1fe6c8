// File path: internal/anchor/resolver.go
package anchor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/common/telemetry"
	"github.com/linkforge/linkforge/internal/llm"
)

// ErrNoAnchor means no natural anchor exists for the pair. Callers treat it
// as a per-candidate rejection, never a run failure.
var ErrNoAnchor = errors.New("no natural anchor")

// Request describes one anchor resolution: the donor text the link will sit
// in and what the target page is about.
type Request struct {
	SourceContext     string
	TargetTitle       string
	TargetDescription string
}

// Resolver produces anchor text for a proposed link.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (string, error)
}

const (
	defaultResolveTimeout = 15 * time.Second
	maxAnchorWords        = 8
	noAnchorToken         = "NO_ANCHOR"
)

const systemPrompt = `You suggest anchor text for internal links in web content.
Given a source passage and a target page, reply with a short natural phrase
(at most ` + "8" + ` words) that could link to the target from the passage.
The phrase must read naturally in the passage and describe the target.
If no natural anchor exists, reply with exactly ` + noAnchorToken + `.`

// LLMResolver asks the chat model for anchor text, with a bounded timeout.
type LLMResolver struct {
	provider llm.Provider
	timeout  time.Duration
}

func NewLLMResolver(provider llm.Provider, timeout time.Duration) *LLMResolver {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	return &LLMResolver{provider: provider, timeout: timeout}
}

func (r *LLMResolver) Resolve(ctx context.Context, req Request) (string, error) {
	if r == nil || r.provider == nil {
		return "", ErrNoAnchor
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Source passage:\n%s\n\nTarget page title: %s\nTarget page summary: %s\n\nAnchor text:",
		truncate(req.SourceContext, 1200), req.TargetTitle, truncate(req.TargetDescription, 400))

	started := time.Now()
	raw, err := r.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	elapsed := time.Since(started)
	if err != nil {
		telemetry.RecordAnchorCall("error", elapsed)
		common.Logger().Debug("anchor: provider failed", "error", err)
		return "", ErrNoAnchor
	}
	anchorText, ok := sanitize(raw)
	if !ok {
		telemetry.RecordAnchorCall("no_anchor", elapsed)
		return "", ErrNoAnchor
	}
	telemetry.RecordAnchorCall("resolved", elapsed)
	return anchorText, nil
}

// sanitize strips quoting and refuses the no-anchor token, empty output and
// phrases too long to be anchors.
func sanitize(raw string) (string, bool) {
	anchorText := strings.TrimSpace(raw)
	anchorText = strings.Trim(anchorText, `"'`)
	anchorText = strings.TrimSuffix(anchorText, ".")
	anchorText = strings.TrimSpace(anchorText)
	if anchorText == "" {
		return "", false
	}
	if strings.EqualFold(anchorText, noAnchorToken) || strings.Contains(strings.ToUpper(anchorText), noAnchorToken) {
		return "", false
	}
	if len(strings.Fields(anchorText)) > maxAnchorWords {
		return "", false
	}
	return anchorText, true
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
