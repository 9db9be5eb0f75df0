package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// OllamaEmbedder generates embeddings via the Ollama HTTP API.
type OllamaEmbedder struct {
	BaseURL string
	Model   string
	Client  *http.Client

	dimMu sync.Mutex
	dim   int
}

func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	return &OllamaEmbedder{
		BaseURL: baseURL,
		Model:   model,
		Client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *OllamaEmbedder) Name() string {
	return "ollama/" + e.Model
}

// Dimension reports the vector size the model produces. Ollama does not
// expose it directly, so the first call embeds a short text and the result
// is cached.
func (e *OllamaEmbedder) Dimension(ctx context.Context) (int, error) {
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

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := ollamaEmbedRequest{
		Model:  e.Model,
		Prompt: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding from ollama")
	}

	l2normalize(embedResp.Embedding)
	return embedResp.Embedding, nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding for chunk %d: %w", i, err)
		}
		embeddings[i] = embedding

		// small delay to avoid overwhelming the api
		if i < len(texts)-1 {
			time.Sleep(10 * time.Millisecond)
		}
	}

	return embeddings, nil
}

// TestConnection checks that the Ollama server is reachable.
func (e *OllamaEmbedder) TestConnection() error {
	url := fmt.Sprintf("%s/api/tags", e.BaseURL)
	resp, err := e.Client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API returned status %d", resp.StatusCode)
	}

	return nil
}
