// File path: internal/llm/openai.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const (
	defaultChatModel   = "gpt-4o"
	defaultEmbedModel  = string(openai.EmbeddingModelTextEmbedding3Small)
	defaultHTTPTimeout = 60 * time.Second
)

// OpenAIProvider speaks the OpenAI API, or any compatible endpoint when
// OPENAI_ENDPOINT is set.
type OpenAIProvider struct {
	client     openai.Client
	chatModel  string
	embedModel string
}

// NewOpenAIProvider builds a provider from the given key and optional base
// endpoint. Model names and the request timeout come from the environment.
func NewOpenAIProvider(apiKey, endpoint string) (*OpenAIProvider, error) {
	opts := []option.RequestOption{}
	if key := strings.TrimSpace(apiKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if base := strings.TrimSpace(endpoint); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	timeout := defaultHTTPTimeout
	if raw := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse OPENAI_HTTP_TIMEOUT: %w", err)
		}
		timeout = parsed
	}
	opts = append(opts, option.WithRequestTimeout(timeout))

	provider := &OpenAIProvider{
		client:     openai.NewClient(opts...),
		chatModel:  defaultChatModel,
		embedModel: defaultEmbedModel,
	}
	if model := strings.TrimSpace(os.Getenv("OPENAI_CHAT_MODEL")); model != "" {
		provider.chatModel = model
	}
	if model := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL")); model != "" {
		provider.embedModel = model
	}
	return provider, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Chat(ctx context.Context, msgs []Message) (string, error) {
	if p == nil {
		return "", errors.New("openai provider not initialised")
	}
	if len(msgs) == 0 {
		return "", errors.New("chat requires at least one message")
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.chatModel),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)),
	}
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p == nil {
		return nil, errors.New("openai provider not initialised")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d texts", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, fmt.Errorf("openai embed returned index %d out of range", idx)
		}
		vector := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vector[i] = float32(v)
		}
		vectors[idx] = vector
	}
	return vectors, nil
}
