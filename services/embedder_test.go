package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docquery/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleEmbedder(t *testing.T) {
	e := NewSimpleEmbedder(128)
	ctx := context.Background()

	t.Run("fixed dimension", func(t *testing.T) {
		embedding, err := e.Embed(ctx, "the quick brown fox")
		require.NoError(t, err)
		assert.Len(t, embedding, 128)
	})

	t.Run("unit length", func(t *testing.T) {
		embedding, err := e.Embed(ctx, "the quick brown fox")
		require.NoError(t, err)

		var sum float32
		for _, v := range embedding {
			sum += v * v
		}
		assert.InDelta(t, 1.0, float64(sum), 0.001)
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := e.Embed(ctx, "some repeated text")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "some repeated text")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("empty text yields zero vector", func(t *testing.T) {
		embedding, err := e.Embed(ctx, "")
		require.NoError(t, err)
		for _, v := range embedding {
			assert.Zero(t, v)
		}
	})

	t.Run("batch", func(t *testing.T) {
		embeddings, err := e.EmbedBatch(ctx, []string{"one", "two", "three"})
		require.NoError(t, err)
		assert.Len(t, embeddings, 3)
	})

	t.Run("dimension", func(t *testing.T) {
		dim, err := e.Dimension(ctx)
		require.NoError(t, err)
		assert.Equal(t, 128, dim)
	})
}

func TestOllamaEmbedder(t *testing.T) {
	t.Run("successful embedding", func(t *testing.T) {
		var gotModel, gotPrompt string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/embeddings", r.URL.Path)

			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			gotModel = req.Model
			gotPrompt = req.Prompt

			json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1, 2, 2}})
		}))
		defer server.Close()

		e := NewOllamaEmbedder(server.URL, "nomic-embed-text")
		embedding, err := e.Embed(context.Background(), "hello")
		require.NoError(t, err)

		assert.Equal(t, "nomic-embed-text", gotModel)
		assert.Equal(t, "hello", gotPrompt)

		// normalized to unit length
		require.Len(t, embedding, 3)
		assert.InDelta(t, 1.0/3.0, float64(embedding[0]), 0.001)
		assert.InDelta(t, 2.0/3.0, float64(embedding[1]), 0.001)
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusInternalServerError)
		}))
		defer server.Close()

		e := NewOllamaEmbedder(server.URL, "nope")
		_, err := e.Embed(context.Background(), "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	})

	t.Run("empty embedding", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ollamaEmbedResponse{})
		}))
		defer server.Close()

		e := NewOllamaEmbedder(server.URL, "nomic-embed-text")
		_, err := e.Embed(context.Background(), "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty embedding")
	})

	t.Run("dimension is cached", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1, 0, 0, 0}})
		}))
		defer server.Close()

		e := NewOllamaEmbedder(server.URL, "nomic-embed-text")

		dim, err := e.Dimension(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4, dim)

		dim, err = e.Dimension(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4, dim)
		assert.Equal(t, 1, requests)
	})

	t.Run("dimension failure is not cached", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusInternalServerError)
		}))
		defer server.Close()

		e := NewOllamaEmbedder(server.URL, "nope")
		_, err := e.Dimension(context.Background())
		assert.Error(t, err)
	})

	t.Run("test connection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/tags", r.URL.Path)
			w.Write([]byte(`{"models":[]}`))
		}))
		defer server.Close()

		e := NewOllamaEmbedder(server.URL, "nomic-embed-text")
		assert.NoError(t, e.TestConnection())
	})
}

func TestNewEmbedder(t *testing.T) {
	t.Run("simple provider", func(t *testing.T) {
		e, err := NewEmbedder(&config.Config{EmbedProvider: "simple"})
		require.NoError(t, err)
		assert.IsType(t, &SimpleEmbedder{}, e)
	})

	t.Run("ollama is the default", func(t *testing.T) {
		e, err := NewEmbedder(&config.Config{OllamaURL: "http://localhost:11434", OllamaEmbedModel: "nomic-embed-text"})
		require.NoError(t, err)
		assert.IsType(t, &OllamaEmbedder{}, e)
	})

	t.Run("openai without key fails", func(t *testing.T) {
		_, err := NewEmbedder(&config.Config{EmbedProvider: "openai"})
		assert.Error(t, err)
	})

	t.Run("openai with key", func(t *testing.T) {
		e, err := NewEmbedder(&config.Config{EmbedProvider: "openai", OpenAIAPIKey: "sk-test", OpenAIEmbedModel: "text-embedding-3-small"})
		require.NoError(t, err)
		assert.Equal(t, "openai/text-embedding-3-small", e.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewEmbedder(&config.Config{EmbedProvider: "quantum"})
		assert.Error(t, err)
	})
}
