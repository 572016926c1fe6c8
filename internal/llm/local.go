// File path: internal/llm/local.go
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

const localDim = 64

// LocalProvider is a deterministic offline backend. Embeddings are unit
// vectors derived from token hashes, so related texts overlap on shared
// tokens and repeated calls are stable. Chat answers with the first plausible
// phrase of the prompt, enough to drive development without a network.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider { return &LocalProvider{} }

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Chat(ctx context.Context, msgs []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var prompt string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			prompt = msgs[i].Content
			break
		}
	}
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return "", nil
	}
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " "), nil
}

func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = localEmbed(text)
	}
	return vectors, nil
}

func localEmbed(text string) []float32 {
	vector := make([]float32, localDim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		idx := binary.BigEndian.Uint32(sum[:4]) % localDim
		sign := float32(1)
		if sum[4]%2 == 1 {
			sign = -1
		}
		vector[idx] += sign
	}
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vector[0] = 1
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}
