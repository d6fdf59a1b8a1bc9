package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yanqian/support-copilot/internal/infra/llm/chatgpt"
	"github.com/yanqian/support-copilot/pkg/metrics"
)

// DefaultMaxBatchTokens stays well below the provider's per-request cap.
const DefaultMaxBatchTokens = 200_000

// EmbeddingClient is the slice of the ChatGPT client the model depends on.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, req chatgpt.EmbeddingRequest) (chatgpt.EmbeddingResponse, error)
}

// OpenAIModel calls an OpenAI-compatible embeddings API.
type OpenAIModel struct {
	client         EmbeddingClient
	model          string
	counter        TokenCounter
	maxBatchTokens int
	logger         *slog.Logger
}

// NewOpenAIModel constructs a remote embedding model.
func NewOpenAIModel(client EmbeddingClient, model string, counter TokenCounter, maxBatchTokens int, logger *slog.Logger) *OpenAIModel {
	if logger == nil {
		logger = slog.Default()
	}
	if counter == nil {
		counter = estimateCounter{}
	}
	if maxBatchTokens <= 0 {
		maxBatchTokens = DefaultMaxBatchTokens
	}
	return &OpenAIModel{
		client:         client,
		model:          strings.TrimSpace(model),
		counter:        counter,
		maxBatchTokens: maxBatchTokens,
		logger:         logger.With("component", "embedder.openai"),
	}
}

// Embed requests embeddings for texts, splitting them into batches under the token budget.
// Output order always follows input order.
func (m *OpenAIModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var (
		out         = make([][]float32, 0, len(texts))
		usage       metrics.TokenUsage
		batch       []string
		batchTokens int
		requests    int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vectors, batchUsage, err := m.embedBatch(ctx, batch)
		if err != nil {
			return err
		}
		out = append(out, vectors...)
		usage = usage.Add(batchUsage)
		requests++
		batch = nil
		batchTokens = 0
		return nil
	}

	for _, text := range texts {
		tokens := m.counter.Count(text)
		if tokens > m.maxBatchTokens {
			return nil, fmt.Errorf("text too large for embedding request: tokens=%d limit=%d", tokens, m.maxBatchTokens)
		}
		if batchTokens+tokens > m.maxBatchTokens && len(batch) > 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		batch = append(batch, text)
		batchTokens += tokens
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if !usage.IsZero() {
		m.logger.Debug("embedding usage",
			"texts", len(texts),
			"requests", requests,
			"prompt_tokens", usage.PromptTokens,
			"total_tokens", usage.TotalTokens,
		)
	}
	return out, nil
}

func (m *OpenAIModel) embedBatch(ctx context.Context, batch []string) ([][]float32, metrics.TokenUsage, error) {
	resp, err := m.client.CreateEmbedding(ctx, chatgpt.EmbeddingRequest{
		Model: m.model,
		Input: batch,
	})
	if err != nil {
		return nil, metrics.TokenUsage{}, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, metrics.TokenUsage{}, fmt.Errorf("embedding result count mismatch: expected %d got %d", len(batch), len(resp.Data))
	}
	vectors := make([][]float32, len(batch))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(batch) || vectors[item.Index] != nil {
			return nil, metrics.TokenUsage{}, fmt.Errorf("embedding result has invalid index %d", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)
		vectors[item.Index] = vec
	}
	usage := metrics.TokenUsage{
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	return vectors, usage, nil
}
