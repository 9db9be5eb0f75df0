package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"docquery/config"
)

// Embedder converts text into a vector representation.
type Embedder interface {
	Name() string
	Dimension(ctx context.Context) (int, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder selects the embedding backend from configuration.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	switch cfg.EmbedProvider {
	case "", "ollama":
		return NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaEmbedModel), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel)
	case "simple":
		return NewSimpleEmbedder(128), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
	}
}

// SimpleEmbedder produces a normalized hashed bag-of-words vector. It needs
// no external service, which makes it usable offline and in tests.
type SimpleEmbedder struct {
	dim int
}

func NewSimpleEmbedder(dimension int) *SimpleEmbedder {
	return &SimpleEmbedder{dim: dimension}
}

func (e *SimpleEmbedder) Name() string {
	return "simple"
}

func (e *SimpleEmbedder) Dimension(_ context.Context) (int, error) {
	return e.dim, nil
}

func (e *SimpleEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	words := strings.Fields(text)

	embedding := make([]float32, e.dim)
	if len(words) == 0 {
		return embedding, nil
	}

	wordCounts := make(map[string]int)
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if word != "" {
			wordCounts[word]++
		}
	}

	for word, count := range wordCounts {
		hash := 0
		for _, char := range word {
			hash = hash*31 + int(char)
		}
		pos := (hash & 0x7FFFFFFF) % e.dim
		embedding[pos] += float32(count) / float32(len(words))
	}

	l2normalize(embedding)
	return embedding, nil
}

func (e *SimpleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// l2normalize scales a vector to unit length in place.
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
