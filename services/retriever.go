package services

import (
	"context"
	"fmt"
	"strings"

	"docquery/models"
	"docquery/storage"
)

// Retriever finds the most relevant chunks for a question by embedding the
// question and searching the in-memory vector index.
type Retriever struct {
	index    *storage.MemoryIndex
	embedder Embedder
}

func NewRetriever(index *storage.MemoryIndex, embedder Embedder) *Retriever {
	return &Retriever{
		index:    index,
		embedder: embedder,
	}
}

// Retrieve returns the topK highest-scoring chunks. An empty documentID
// searches across all documents.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int, documentID string) ([]models.SearchResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	queryEmbedding, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	return r.index.Search(queryEmbedding, topK, documentID), nil
}
