package services

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string

	dimMu sync.Mutex
	dim   int
}

func NewOpenAIEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider")
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

func (e *OpenAIEmbedder) Name() string {
	return "openai/" + e.model
}

// Dimension embeds a short text on first call and caches the vector size.
func (e *OpenAIEmbedder) Dimension(ctx context.Context) (int, error) {
	e.dimMu.Lock()
	defer e.dimMu.Unlock()

	if e.dim > 0 {
		return e.dim, nil
	}

	embedding, err := e.Embed(ctx, "dimension")
	if err != nil {
		return 0, fmt.Errorf("failed to determine embedding dimension: %w", err)
	}

	e.dim = len(embedding)
	return e.dim, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned from API")
	}

	embedding := resp.Data[0].Embedding
	l2normalize(embedding)
	return embedding, nil
}

// EmbedBatch embeds all texts with a bounded number of concurrent API calls.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	errChan := make(chan error, len(texts))
	sem := make(chan struct{}, 10)

	for i := range texts {
		sem <- struct{}{}
		go func(idx int) {
			defer func() { <-sem }()

			embedding, err := e.Embed(ctx, texts[idx])
			if err != nil {
				errChan <- fmt.Errorf("failed to embed chunk %d: %w", idx, err)
				return
			}
			embeddings[idx] = embedding
			errChan <- nil
		}(i)
	}

	var firstErr error
	for range texts {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return embeddings, nil
}
