package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yanqian/support-copilot/internal/domain/matcher"
	"github.com/yanqian/support-copilot/internal/infra/llm/chatgpt"
)

// Supported embedding backends.
const (
	BackendAuto    = "auto"
	BackendOpenAI  = "openai"
	BackendHashing = "hashing"
)

const probeText = "healthcheck"

// Options selects and configures an embedding backend.
type Options struct {
	Backend        string
	APIKey         string
	BaseURL        string
	Model          string
	HashDimensions int
	MaxBatchTokens int
}

// ResolveBackend maps "auto" to a concrete backend.
func ResolveBackend(opts Options) string {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" || backend == BackendAuto {
		if strings.TrimSpace(opts.APIKey) != "" {
			return BackendOpenAI
		}
		return BackendHashing
	}
	return backend
}

// NewLoader returns the expensive initialization step for the selected backend.
// Nothing is contacted until the returned loader runs.
func NewLoader(opts Options, logger *slog.Logger) (matcher.ModelLoader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch backend := ResolveBackend(opts); backend {
	case BackendHashing:
		return func(context.Context) (matcher.Model, error) {
			model := NewHashingModel(opts.HashDimensions)
			logger.Info("hashing embedding model ready", "dimensions", model.Dimensions())
			return model, nil
		}, nil
	case BackendOpenAI:
		return func(ctx context.Context) (matcher.Model, error) {
			return loadOpenAI(ctx, opts, logger)
		}, nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", backend)
	}
}

func loadOpenAI(ctx context.Context, opts Options, logger *slog.Logger) (matcher.Model, error) {
	client, err := chatgpt.NewClient(opts.APIKey, opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("init embedding client: %w", err)
	}
	counter := NewTokenCounter(opts.Model, logger)
	model := NewOpenAIModel(client, opts.Model, counter, opts.MaxBatchTokens, logger)
	probe, err := model.Embed(ctx, []string{probeText})
	if err != nil {
		return nil, fmt.Errorf("probe embedding model %q: %w", opts.Model, err)
	}
	logger.Info("openai embedding model ready", "model", opts.Model, "dimensions", len(probe[0]))
	return model, nil
}
