package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

func newCompatServer(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if captured != nil {
			*captured = payload
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/embeddings":
			_, _ = w.Write([]byte(`{"object":"list","model":"embed","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
		case "/chat/completions":
			_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"chat","choices":[{"index":0,"message":{"role":"assistant","content":" reformulated query \n"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestEmbedderEmbedQuery(t *testing.T) {
	server := newCompatServer(t, nil)
	defer server.Close()

	embedder, err := NewEmbedder(Config{BaseURL: server.URL, EmbeddingModel: "embed"}, nil)
	require.NoError(t, err)

	vector, err := embedder.EmbedQuery(context.Background(), "statin therapy")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vector)
}

func TestGeneratorComplete(t *testing.T) {
	var payload map[string]any
	server := newCompatServer(t, &payload)
	defer server.Close()

	gen, err := NewGenerator(Config{BaseURL: server.URL, ChatModel: "chat"}, nil)
	require.NoError(t, err)

	out, err := gen.Complete(context.Background(), "rephrase", domain.CompletionOptions{Temperature: 0.7, MaxTokens: 200})
	require.NoError(t, err)
	assert.Equal(t, "reformulated query", out)
	assert.Equal(t, "chat", payload["model"])
}

func TestGeneratorUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	gen, err := NewGenerator(Config{BaseURL: server.URL, ChatModel: "chat"}, nil)
	require.NoError(t, err)

	_, err = gen.Complete(context.Background(), "rephrase", domain.CompletionOptions{})
	assert.Error(t, err)
}
