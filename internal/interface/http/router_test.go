package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/support-copilot/internal/domain/matcher"
	"github.com/yanqian/support-copilot/internal/domain/support"
	"github.com/yanqian/support-copilot/internal/infra/config"
	apperrors "github.com/yanqian/support-copilot/pkg/errors"
)

const analyzePath = "/api/v1/support/analyzeQuestion"

func TestRouter_AnalyzeQuestionSuccess(t *testing.T) {
	match := matcher.Match{
		Record:               support.Record{ID: "1", Subject: "Account", Question: "reset password", Answer: "Use the link."},
		Similarity:           0.92,
		SimilarityPercentage: "92.00",
	}
	svc := &stubMatcher{
		analyzeFn: func(ctx context.Context, req matcher.Request) (matcher.Result, error) {
			require.Equal(t, "how do I reset my password", req.Query)
			return matcher.Result{
				Query:        req.Query,
				Matches:      []matcher.Match{match},
				HasGoodMatch: true,
				BestMatch:    &match,
				Message:      matcher.MessageGoodMatch,
			}, nil
		},
	}

	recorder := performRequest(http.MethodPost, analyzePath, `{"query":"how do I reset my password"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, true, got["hasGoodMatch"])
	require.Equal(t, matcher.MessageGoodMatch, got["message"])
	matches := got["matches"].([]any)
	require.Len(t, matches, 1)
	first := matches[0].(map[string]any)
	require.Equal(t, "92.00", first["similarityPercentage"])
	require.Equal(t, "reset password", first["response"].(map[string]any)["question"])
	require.Equal(t, "1", got["bestMatch"].(map[string]any)["response"].(map[string]any)["id"])
}

func TestRouter_AnalyzeQuestionEmptyStoreSerializesEmptyMatches(t *testing.T) {
	svc := &stubMatcher{
		analyzeFn: func(ctx context.Context, req matcher.Request) (matcher.Result, error) {
			return matcher.Result{Query: req.Query, Matches: []matcher.Match{}, Message: matcher.MessageNoCandidates}, nil
		},
	}

	recorder := performRequest(http.MethodPost, analyzePath, `{"query":"anything"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"matches":[]`)
	require.Contains(t, recorder.Body.String(), `"bestMatch":null`)
}

func TestRouter_AnalyzeQuestionRejectsNonStringQuery(t *testing.T) {
	svc := &stubMatcher{}

	for _, body := range []string{`{"query":123}`, `not json`} {
		recorder := performRequest(http.MethodPost, analyzePath, body, newRouterUnderTest(t, svc, nil))
		require.Equal(t, http.StatusBadRequest, recorder.Code)

		errBody := decodeErrorBody(t, recorder.Body.Bytes())
		require.Equal(t, invalidQueryMessage, errBody.Error)
		require.Equal(t, matcher.CodeInvalidQuery, errBody.Code)
	}
	require.Zero(t, svc.calls)
}

func TestRouter_AnalyzeQuestionErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "blank query", err: apperrors.Wrap(matcher.CodeInvalidQuery, "query cannot be empty", nil), status: http.StatusBadRequest, code: matcher.CodeInvalidQuery},
		{name: "model unavailable", err: apperrors.Wrap(matcher.CodeModelUnavailable, "embedding model unavailable", errors.New("download failed")), status: http.StatusServiceUnavailable, code: matcher.CodeModelUnavailable},
		{name: "dimension mismatch", err: apperrors.Wrap(matcher.CodeDimensionMismatch, "vector length mismatch", nil), status: http.StatusInternalServerError, code: matcher.CodeDimensionMismatch},
		{name: "record store", err: apperrors.Wrap(matcher.CodeRecordStore, "failed to load support records", errors.New("db down")), status: http.StatusInternalServerError, code: matcher.CodeRecordStore},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubMatcher{
				analyzeFn: func(ctx context.Context, req matcher.Request) (matcher.Result, error) {
					return matcher.Result{}, tc.err
				},
			}

			recorder := performRequest(http.MethodPost, analyzePath, `{"query":"q"}`, newRouterUnderTest(t, svc, nil))
			require.Equal(t, tc.status, recorder.Code)

			errBody := decodeErrorBody(t, recorder.Body.Bytes())
			require.Equal(t, tc.code, errBody.Code)
			if tc.status >= http.StatusInternalServerError {
				require.Equal(t, analyzeFailedMessage, errBody.Error)
				require.Equal(t, tc.err.Error(), errBody.Details)
			} else {
				require.Empty(t, errBody.Details)
			}
		})
	}
}

func TestRouter_Healthz(t *testing.T) {
	status := &stubModelStatus{}
	server := newRouterUnderTest(t, &stubMatcher{}, status)

	recorder := performRequest(http.MethodGet, "/healthz", "", server)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, `{"status":"ok","embeddingModelLoaded":false}`, recorder.Body.String())

	status.ready = true
	recorder = performRequest(http.MethodGet, "/healthz", "", server)
	require.JSONEq(t, `{"status":"ok","embeddingModelLoaded":true}`, recorder.Body.String())
}

func TestRouter_CORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, analyzePath, nil)
	req.Header.Set("Origin", "https://support.example.com")
	rec := httptest.NewRecorder()
	newRouterUnderTest(t, &stubMatcher{}, nil).Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://support.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	server := NewRouter(cfg, NewHandler(&stubMatcher{}, nil, newTestLogger()))

	first := performRequest(http.MethodPost, analyzePath, `{"query":"q"}`, server)
	require.Equal(t, http.StatusOK, first.Code)

	second := performRequest(http.MethodPost, analyzePath, `{"query":"q"}`, server)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Equal(t, "rate_limit_exceeded", decodeErrorBody(t, second.Body.Bytes()).Code)

	health := performRequest(http.MethodGet, "/healthz", "", server)
	require.Equal(t, http.StatusOK, health.Code)
}

func TestIPRateLimiterRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter(config.RateLimitConfig{RequestsPerMinute: 60, Burst: 2}, func() time.Time { return now })

	require.True(t, limiter.allow("1.1.1.1"))
	require.True(t, limiter.allow("1.1.1.1"))
	require.False(t, limiter.allow("1.1.1.1"))
	require.True(t, limiter.allow("2.2.2.2"))

	now = now.Add(time.Second)
	require.True(t, limiter.allow("1.1.1.1"))
	require.False(t, limiter.allow("1.1.1.1"))

	now = now.Add(10 * time.Minute)
	require.True(t, limiter.allow("3.3.3.3"))
	require.Len(t, limiter.buckets, 1)
}

func performRequest(method, path, body string, server *http.Server) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func newRouterUnderTest(t *testing.T, svc matcher.Service, status ModelStatus) *http.Server {
	t.Helper()
	return NewRouter(testConfig(), NewHandler(svc, status, newTestLogger()))
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			CORS:         config.CORSConfig{AllowedOrigins: []string{"https://support.example.com"}},
		},
	}
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubMatcher struct {
	analyzeFn func(ctx context.Context, req matcher.Request) (matcher.Result, error)
	calls     int
}

func (s *stubMatcher) Analyze(ctx context.Context, query string, candidates []support.Record) (matcher.Result, error) {
	return matcher.Result{}, errors.New("not implemented")
}

func (s *stubMatcher) AnalyzeQuestion(ctx context.Context, req matcher.Request) (matcher.Result, error) {
	s.calls++
	if s.analyzeFn != nil {
		return s.analyzeFn(ctx, req)
	}
	return matcher.Result{Query: req.Query, Matches: []matcher.Match{}, Message: matcher.MessageNoCandidates}, nil
}

type stubModelStatus struct {
	ready bool
}

func (s *stubModelStatus) Ready() bool {
	return s.ready
}

func decodeErrorBody(t *testing.T, raw []byte) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
