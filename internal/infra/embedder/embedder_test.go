package embedder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/support-copilot/internal/domain/matcher"
	"github.com/yanqian/support-copilot/internal/infra/llm/chatgpt"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		out  []string
	}{
		{name: "lowercases and trims", in: "  Reset My PASSWORD ", out: []string{"reset", "my", "password"}},
		{name: "splits on punctuation", in: "What's the refund-policy?", out: []string{"what", "s", "the", "refund", "policy"}},
		{name: "keeps digits", in: "error 404", out: []string{"error", "404"}},
		{name: "only punctuation", in: "?!...", out: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tokenize(tc.in)
			if len(tc.out) == 0 {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tc.out, got)
		})
	}
}

func TestHashingModelDeterministicAndNormalized(t *testing.T) {
	model := NewHashingModel(64)
	vectors, err := model.Embed(context.Background(), []string{"Reset password", "reset   PASSWORD!", "update billing address"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Equal(t, vectors[0], vectors[1])
	for _, v := range vectors {
		require.Len(t, v, 64)
		require.InDelta(t, 1.0, l2(v), 1e-5)
	}

	same, err := matcher.Cosine(vectors[0], vectors[1])
	require.NoError(t, err)
	require.InDelta(t, 1.0, same, 1e-6)
}

func TestHashingModelRanksOverlapHigher(t *testing.T) {
	model := NewHashingModel(512)
	vectors, err := model.Embed(context.Background(), []string{
		"how do i reset my password",
		"reset my password",
		"update billing address on invoice",
	})
	require.NoError(t, err)

	near, err := matcher.Cosine(vectors[0], vectors[1])
	require.NoError(t, err)
	far, err := matcher.Cosine(vectors[0], vectors[2])
	require.NoError(t, err)
	require.Greater(t, near, far)
}

func TestHashingModelEmptyTextIsZeroVector(t *testing.T) {
	model := NewHashingModel(0)
	vectors, err := model.Embed(context.Background(), []string{"", "  ?? "})
	require.NoError(t, err)
	require.Len(t, vectors[0], defaultHashDimensions)
	require.Zero(t, l2(vectors[0]))
	require.Zero(t, l2(vectors[1]))
}

func TestOpenAIModelReordersByIndex(t *testing.T) {
	client := &stubEmbeddingClient{respond: func(req chatgpt.EmbeddingRequest) chatgpt.EmbeddingResponse {
		inputs := req.Input.([]string)
		resp := chatgpt.EmbeddingResponse{Usage: chatgpt.EmbeddingUsage{PromptTokens: len(inputs), TotalTokens: len(inputs)}}
		for i := len(inputs) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, chatgpt.EmbeddingData{Index: i, Embedding: []float32{float32(len(inputs[i]))}})
		}
		return resp
	}}
	model := NewOpenAIModel(client, "text-embedding-3-small", wordCounter{}, 0, newTestLogger())

	vectors, err := model.Embed(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1}, {3}, {2}}, vectors)
	require.Equal(t, 1, client.calls)
}

func TestOpenAIModelSplitsBatchesByTokenBudget(t *testing.T) {
	client := &stubEmbeddingClient{}
	model := NewOpenAIModel(client, "m", wordCounter{}, 4, newTestLogger())

	texts := []string{"one two", "three four", "five", "six seven eight"}
	vectors, err := model.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	require.Equal(t, [][]string{{"one two", "three four"}, {"five", "six seven eight"}}, client.batches)
	for i, text := range texts {
		require.Equal(t, float32(len(text)), vectors[i][0])
	}
}

func TestOpenAIModelRejectsOversizedText(t *testing.T) {
	client := &stubEmbeddingClient{}
	model := NewOpenAIModel(client, "m", wordCounter{}, 2, newTestLogger())

	_, err := model.Embed(context.Background(), []string{"far too many words"})
	require.Error(t, err)
	require.Zero(t, client.calls)
}

func TestOpenAIModelRejectsBadResponses(t *testing.T) {
	cases := []struct {
		name string
		resp chatgpt.EmbeddingResponse
	}{
		{name: "missing item", resp: chatgpt.EmbeddingResponse{Data: []chatgpt.EmbeddingData{{Index: 0, Embedding: []float32{1}}}}},
		{name: "duplicate index", resp: chatgpt.EmbeddingResponse{Data: []chatgpt.EmbeddingData{{Index: 0, Embedding: []float32{1}}, {Index: 0, Embedding: []float32{2}}}}},
		{name: "out of range index", resp: chatgpt.EmbeddingResponse{Data: []chatgpt.EmbeddingData{{Index: 0, Embedding: []float32{1}}, {Index: 5, Embedding: []float32{2}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := tc.resp
			client := &stubEmbeddingClient{respond: func(chatgpt.EmbeddingRequest) chatgpt.EmbeddingResponse { return resp }}
			model := NewOpenAIModel(client, "m", wordCounter{}, 0, newTestLogger())

			_, err := model.Embed(context.Background(), []string{"a", "b"})
			require.Error(t, err)
		})
	}
}

func TestOpenAIModelPropagatesClientError(t *testing.T) {
	client := &stubEmbeddingClient{err: errors.New("connection refused")}
	model := NewOpenAIModel(client, "m", nil, 0, newTestLogger())

	_, err := model.Embed(context.Background(), []string{"a"})
	require.ErrorContains(t, err, "connection refused")
}

func TestResolveBackend(t *testing.T) {
	require.Equal(t, BackendHashing, ResolveBackend(Options{}))
	require.Equal(t, BackendHashing, ResolveBackend(Options{Backend: "auto", APIKey: " "}))
	require.Equal(t, BackendOpenAI, ResolveBackend(Options{Backend: "AUTO", APIKey: "sk"}))
	require.Equal(t, BackendHashing, ResolveBackend(Options{Backend: "hashing", APIKey: "sk"}))
	require.Equal(t, BackendOpenAI, ResolveBackend(Options{Backend: "openai"}))
}

func TestNewLoaderUnknownBackend(t *testing.T) {
	_, err := NewLoader(Options{Backend: "onnx"}, newTestLogger())
	require.Error(t, err)
}

func TestHashingLoader(t *testing.T) {
	load, err := NewLoader(Options{Backend: BackendHashing, HashDimensions: 16}, newTestLogger())
	require.NoError(t, err)

	model, err := load(context.Background())
	require.NoError(t, err)
	vectors, err := model.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors[0], 16)
}

func TestOpenAILoaderProbesAPI(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/embeddings") {
			requests.Add(1)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer server.Close()

	load, err := NewLoader(Options{APIKey: "sk", BaseURL: server.URL, Model: "text-embedding-3-small", MaxBatchTokens: 1000}, newTestLogger())
	require.NoError(t, err)
	require.Zero(t, requests.Load())

	model, err := load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, model)
	require.Equal(t, int32(1), requests.Load())
}

func TestOpenAILoaderFailsOnRejectedProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	load, err := NewLoader(Options{Backend: BackendOpenAI, APIKey: "bad", BaseURL: server.URL, Model: "m", MaxBatchTokens: 1000}, newTestLogger())
	require.NoError(t, err)

	_, err = load(context.Background())
	var apiErr *chatgpt.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestBoundedBpeLoaderCachesDownload(t *testing.T) {
	t.Setenv("TIKTOKEN_CACHE_DIR", t.TempDir())
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("YQ== 0\nYg== 1\n"))
	}))
	url := server.URL + "/ranks.tiktoken"
	loader := newBoundedBpeLoader(time.Second)

	ranks, err := loader.LoadTiktokenBpe(url)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 0, "b": 1}, ranks)

	server.Close()
	ranks, err = loader.LoadTiktokenBpe(url)
	require.NoError(t, err)
	require.Len(t, ranks, 2)
	require.Equal(t, int32(1), requests.Load())
}

func TestBoundedBpeLoaderTimesOutStalledDownload(t *testing.T) {
	t.Setenv("TIKTOKEN_CACHE_DIR", t.TempDir())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()
	loader := newBoundedBpeLoader(50 * time.Millisecond)

	start := time.Now()
	_, err := loader.LoadTiktokenBpe(server.URL + "/ranks.tiktoken")
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestBoundedBpeLoaderRejectsErrorStatus(t *testing.T) {
	t.Setenv("TIKTOKEN_CACHE_DIR", t.TempDir())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newBoundedBpeLoader(time.Second).LoadTiktokenBpe(server.URL + "/ranks.tiktoken")
	require.ErrorContains(t, err, "unexpected status 502")
}

func TestEstimateTokens(t *testing.T) {
	require.Zero(t, estimateTokens(""))
	require.Equal(t, 3, estimateTokens("abcde"))
	require.Equal(t, 3, estimateTokens("a b c"))
}

type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

type stubEmbeddingClient struct {
	respond func(chatgpt.EmbeddingRequest) chatgpt.EmbeddingResponse
	err     error
	calls   int
	batches [][]string
}

func (s *stubEmbeddingClient) CreateEmbedding(_ context.Context, req chatgpt.EmbeddingRequest) (chatgpt.EmbeddingResponse, error) {
	s.calls++
	inputs := req.Input.([]string)
	s.batches = append(s.batches, append([]string(nil), inputs...))
	if s.err != nil {
		return chatgpt.EmbeddingResponse{}, s.err
	}
	if s.respond != nil {
		return s.respond(req), nil
	}
	var resp chatgpt.EmbeddingResponse
	for i, text := range inputs {
		resp.Data = append(resp.Data, chatgpt.EmbeddingData{Index: i, Embedding: []float32{float32(len(text))}})
	}
	return resp, nil
}

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
