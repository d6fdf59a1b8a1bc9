package chatgpt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("  ", "")
	require.Error(t, err)

	client, err := NewClient("key", "")
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, client.baseURL)
}

func TestCreateEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "text-embedding-3-small", req.Model)
		require.Equal(t, []string{"reset password", "billing"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"text-embedding-3-small","data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}],"usage":{"prompt_tokens":4,"total_tokens":4}}`))
	}))
	defer server.Close()

	client, err := NewClient("secret", server.URL+"/v1/")
	require.NoError(t, err)

	resp, err := client.CreateEmbedding(context.Background(), EmbeddingRequest{
		Model: "text-embedding-3-small",
		Input: []string{"reset password", "billing"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	require.Equal(t, 1, resp.Data[0].Index)
	require.Equal(t, []float32{1, 0}, resp.Data[1].Embedding)
	require.Equal(t, 4, resp.Usage.TotalTokens)
}

func TestCreateEmbeddingStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client, err := NewClient("secret", server.URL, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	_, err = client.CreateEmbedding(context.Background(), EmbeddingRequest{Model: "m", Input: "hi"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Contains(t, apiErr.Body, "rate limited")
}
