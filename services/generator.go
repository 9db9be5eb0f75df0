package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GenerateOptions are forwarded verbatim to the Ollama generation API.
type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumCtx      int     `json:"num_ctx"`
}

// Generator produces answers through the Ollama LLM API.
type Generator struct {
	BaseURL string
	Model   string
	Options GenerateOptions
	Client  *http.Client
}

func NewGenerator(baseURL, model string, options GenerateOptions) *Generator {
	return &Generator{
		BaseURL: baseURL,
		Model:   model,
		Options: options,
		Client: &http.Client{
			Timeout: 120 * time.Second, // longer timeout for generation
		},
	}
}

type ollamaGenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// GenerateResponse answers the question from the retrieved context passages.
func (g *Generator) GenerateResponse(ctx context.Context, question string, contexts []string) (string, error) {
	return g.GenerateWithCustomPrompt(ctx, g.buildPrompt(question, contexts))
}

// GenerateWithCustomPrompt sends a raw prompt to the model.
func (g *Generator) GenerateWithCustomPrompt(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:   g.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: g.Options,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if genResp.Response == "" {
		return "", fmt.Errorf("received empty response from Ollama")
	}

	return strings.TrimSpace(genResp.Response), nil
}

// buildPrompt assembles the instruction header, numbered context passages
// and the question.
func (g *Generator) buildPrompt(question string, contexts []string) string {
	var sb strings.Builder

	sb.WriteString("You are a helpful assistant answering questions about uploaded documents.\n")
	sb.WriteString("Use ONLY the following context passages to answer the question.\n")
	sb.WriteString("If the answer cannot be found in the context, say \"I cannot find this information in the provided documents.\"\n")
	sb.WriteString("Be concise and accurate. Cite specific details from the context when possible.\n\n")

	sb.WriteString("Context:\n")
	sb.WriteString("---\n")
	for i, context := range contexts {
		sb.WriteString(fmt.Sprintf("[%d] %s\n\n", i+1, context))
	}
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("Question: %s\n\n", question))
	sb.WriteString("Answer:")

	return sb.String()
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of the models the Ollama server has pulled.
func (g *Generator) ListModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/api/tags", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, model := range tags.Models {
		names = append(names, model.Name)
	}

	return names, nil
}

// ModelLoaded reports whether the configured model is among the pulled models.
func (g *Generator) ModelLoaded(ctx context.Context) (bool, []string, error) {
	names, err := g.ListModels(ctx)
	if err != nil {
		return false, nil, err
	}

	for _, name := range names {
		if strings.HasPrefix(name, g.Model) {
			return true, names, nil
		}
	}

	return false, names, nil
}

// TestConnection checks that the Ollama server is reachable.
func (g *Generator) TestConnection() error {
	url := fmt.Sprintf("%s/api/tags", g.BaseURL)
	resp, err := g.Client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API returned status %d", resp.StatusCode)
	}

	return nil
}
