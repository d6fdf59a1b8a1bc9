package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/yanqian/support-copilot/pkg/errors"
)

// EmbeddingProvider turns texts into vectors.
// The result has the same length as texts and result[i] belongs to texts[i].
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// Model is a loaded embedding backend.
type Model interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelLoader performs the expensive model initialization.
type ModelLoader func(ctx context.Context) (Model, error)

const (
	modelLoadKey = "model"
	// DefaultModelLoadTimeout bounds one detached model load.
	DefaultModelLoadTimeout = 2 * time.Minute
)

// LazyProvider loads its model on first use and keeps it for the lifetime of the process.
// Concurrent callers arriving before the model is ready share a single in-flight load.
// Failed or timed out loads are not remembered, so a later request can try again.
type LazyProvider struct {
	load        ModelLoader
	loadTimeout time.Duration
	logger      *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	model Model
	loads atomic.Int64
}

// NewLazyProvider wraps a loader with process-wide caching.
func NewLazyProvider(load ModelLoader, logger *slog.Logger) *LazyProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LazyProvider{
		load:        load,
		loadTimeout: DefaultModelLoadTimeout,
		logger:      logger.With("component", "matcher.provider"),
	}
}

// EmbedBatch implements EmbeddingProvider.
func (p *LazyProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return []Vector{}, nil
	}
	model, err := p.ensureModel(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := model.Embed(ctx, texts)
	if err != nil {
		return nil, apperrors.Wrap(CodeModelUnavailable, "embedding inference failed", err)
	}
	return toVectors(len(texts), raw)
}

// Ready reports whether the model is already cached.
func (p *LazyProvider) Ready() bool {
	return p.cached() != nil
}

// LoadCount returns how many loads have completed successfully.
func (p *LazyProvider) LoadCount() int64 {
	return p.loads.Load()
}

func (p *LazyProvider) cached() Model {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *LazyProvider) ensureModel(ctx context.Context) (Model, error) {
	if model := p.cached(); model != nil {
		return model, nil
	}
	// The load outlives the caller that triggered it; other waiters may still need the result.
	detached := context.WithoutCancel(ctx)
	resCh := p.group.DoChan(modelLoadKey, func() (any, error) {
		if model := p.cached(); model != nil {
			return model, nil
		}
		if p.load == nil {
			return nil, errors.New("no embedding model loader configured")
		}
		loadCtx, cancel := context.WithTimeout(detached, p.loadTimeout)
		defer cancel()
		start := time.Now()
		model, err := p.runLoad(loadCtx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.model = model
		p.mu.Unlock()
		p.loads.Add(1)
		p.logger.Info("embedding model loaded", "latency_ms", time.Since(start).Milliseconds())
		return model, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.Wrap(CodeModelUnavailable, "embedding model load interrupted", ctx.Err())
	case res := <-resCh:
		if res.Err != nil {
			p.logger.Error("embedding model load failed", "error", res.Err, "shared", res.Shared)
			return nil, apperrors.Wrap(CodeModelUnavailable, "embedding model unavailable", res.Err)
		}
		return res.Val.(Model), nil
	}
}

type loadResult struct {
	model Model
	err   error
}

// runLoad releases the single-flight slot when loadCtx expires, even if the loader ignores it.
func (p *LazyProvider) runLoad(loadCtx context.Context) (Model, error) {
	done := make(chan loadResult, 1)
	go func() {
		model, err := p.load(loadCtx)
		done <- loadResult{model: model, err: err}
	}()
	select {
	case <-loadCtx.Done():
		return nil, fmt.Errorf("embedding model load timed out after %s: %w", p.loadTimeout, loadCtx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.model == nil {
			return nil, errors.New("embedding model loader returned nil model")
		}
		return res.model, nil
	}
}

// toVectors validates raw model output at the provider boundary.
func toVectors(expected int, raw [][]float32) ([]Vector, error) {
	if len(raw) != expected {
		return nil, apperrors.Wrap(CodeModelUnavailable, fmt.Sprintf("embedding model returned %d vectors for %d inputs", len(raw), expected), nil)
	}
	dims := len(raw[0])
	out := make([]Vector, len(raw))
	for i, values := range raw {
		if len(values) == 0 {
			return nil, apperrors.Wrap(CodeModelUnavailable, fmt.Sprintf("embedding %d is empty", i), nil)
		}
		if len(values) != dims {
			return nil, apperrors.Wrap(CodeDimensionMismatch, fmt.Sprintf("embedding %d has %d dimensions, expected %d", i, len(values), dims), nil)
		}
		for _, v := range values {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, apperrors.Wrap(CodeModelUnavailable, fmt.Sprintf("embedding %d contains non-finite values", i), nil)
			}
		}
		vec := make(Vector, len(values))
		copy(vec, values)
		out[i] = vec
	}
	return out, nil
}

var _ EmbeddingProvider = (*LazyProvider)(nil)
