package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Chat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient("sk-test", "gpt-4.1-mini", srv.URL)
	schema := &JSONSchema{Name: "probe", Strict: true, Schema: map[string]any{"type": "object"}}
	out, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{Schema: schema})

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "gpt-4.1-mini", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_schema", got.ResponseFormat.Type)
	assert.Equal(t, "probe", got.ResponseFormat.JSONSchema.Name)
}

func TestClient_ChatErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"non-200", http.StatusTooManyRequests, `{"error":{"type":"rate_limit","message":"slow down"}}`, "status 429"},
		{"api error", http.StatusOK, `{"error":{"type":"invalid_request_error","message":"bad"}}`, "invalid_request_error"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"bad json", http.StatusOK, `not json`, "parsing response JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("k", "m", srv.URL).Chat(context.Background(), nil, ChatOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_MissingKey(t *testing.T) {
	_, err := NewClient("", "m", "http://127.0.0.1:1").Chat(context.Background(), nil, ChatOptions{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "API key"))
}

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		// Out of order on purpose.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	vecs, err := NewClient("k", "m", srv.URL+"/").Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestClient_EmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", "m", srv.URL).Embed(context.Background(), "e", []string{"a", "b"})
	require.Error(t, err)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"x"}}]}`))
	}))
	defer srv.Close()

	c := NewClient("k", "m", srv.URL, WithRateLimit(0.001, 1))
	_, err := c.Chat(context.Background(), nil, ChatOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Chat(ctx, nil, ChatOptions{})
	require.Error(t, err)
}
