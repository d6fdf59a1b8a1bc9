package matcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/yanqian/support-copilot/internal/domain/support"
	apperrors "github.com/yanqian/support-copilot/pkg/errors"
)

// Service finds stored questions that are semantically close to a query.
type Service interface {
	// Analyze ranks the given candidates against query.
	Analyze(ctx context.Context, query string, candidates []support.Record) (Result, error)
	// AnalyzeQuestion ranks the full current record set against req.Query.
	AnalyzeQuestion(ctx context.Context, req Request) (Result, error)
}

type service struct {
	cfg      Config
	provider EmbeddingProvider
	records  support.RecordLister
	engine   Engine
	logger   *slog.Logger
}

// NewService wires up the matcher domain.
func NewService(cfg Config, provider EmbeddingProvider, records support.RecordLister, logger *slog.Logger) Service {
	cfg = cfg.withDefaults()
	return &service{
		cfg:      cfg,
		provider: provider,
		records:  records,
		engine:   NewEngine(cfg.GoodMatchThreshold),
		logger:   logger.With("component", "matcher.service"),
	}
}

func (s *service) AnalyzeQuestion(ctx context.Context, req Request) (Result, error) {
	if err := validateQuery(req.Query); err != nil {
		return Result{}, err
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	candidates, err := s.records.ListAll(ctx)
	if err != nil {
		return Result{}, apperrors.Wrap(CodeRecordStore, "failed to load support records", err)
	}
	return s.Analyze(ctx, req.Query, candidates)
}

func (s *service) Analyze(ctx context.Context, query string, candidates []support.Record) (Result, error) {
	if err := validateQuery(query); err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{
			Query:   query,
			Matches: []Match{},
			Message: MessageNoCandidates,
		}, nil
	}

	start := time.Now()
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, query)
	for _, candidate := range candidates {
		texts = append(texts, candidate.Question)
	}

	vectors, err := s.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, err
	}
	queryVector, candidateVectors, err := splitQueryVectors(vectors, len(candidates))
	if err != nil {
		return Result{}, err
	}

	ranked, err := s.engine.Rank(queryVector, candidates, candidateVectors)
	if err != nil {
		if apperrors.IsCode(err, CodeDimensionMismatch) {
			s.logger.Error("similarity ranking rejected vectors", "error", err)
		}
		return Result{}, err
	}
	matches := Top(ranked, s.cfg.TopK)
	result := buildResult(query, matches, s.engine.IsGoodMatch(matches))

	s.logger.Info("question analyzed",
		"candidates", len(candidates),
		"dimensions", queryVector.Dims(),
		"matches", len(result.Matches),
		"has_good_match", result.HasGoodMatch,
		"top_similarity", topSimilarity(result),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// splitQueryVectors separates the query embedding at index 0 from the candidate embeddings that follow.
func splitQueryVectors(vectors []Vector, candidates int) (Vector, []Vector, error) {
	if len(vectors) != candidates+1 {
		return nil, nil, apperrors.Wrap(CodeModelUnavailable, "embedding batch size does not match request", nil)
	}
	return vectors[0], vectors[1:], nil
}

func buildResult(query string, matches []Match, good bool) Result {
	result := Result{
		Query:        query,
		Matches:      matches,
		HasGoodMatch: good,
		Message:      MessageNoGoodMatch,
	}
	if result.Matches == nil {
		result.Matches = []Match{}
	}
	if len(result.Matches) > 0 {
		best := result.Matches[0]
		result.BestMatch = &best
	}
	if good {
		result.Message = MessageGoodMatch
	}
	return result
}

func topSimilarity(result Result) float64 {
	if result.BestMatch == nil {
		return 0
	}
	return result.BestMatch.Similarity
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return apperrors.Wrap(CodeInvalidQuery, "query cannot be empty", nil)
	}
	return nil
}
