package storage

import (
	"context"
	"math"
	"sort"
	"sync"

	"docquery/models"
)

// MemoryIndex is a flat in-memory vector index over all stored chunks.
// MongoDB stays the durable store; the index is rebuilt from it at startup
// and kept in sync on every insert and delete so queries never scan the
// database.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []models.Chunk
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Load replaces the index contents with every chunk in the store.
func (idx *MemoryIndex) Load(ctx context.Context, store *MongoStore) (int, error) {
	chunks, err := store.GetAllChunks(ctx)
	if err != nil {
		return 0, err
	}

	idx.mu.Lock()
	idx.chunks = chunks
	idx.mu.Unlock()

	return len(chunks), nil
}

func (idx *MemoryIndex) Add(chunks []models.Chunk) {
	idx.mu.Lock()
	idx.chunks = append(idx.chunks, chunks...)
	idx.mu.Unlock()
}

// Remove drops all chunks belonging to a document.
func (idx *MemoryIndex) Remove(documentID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.chunks[:0]
	for _, chunk := range idx.chunks {
		if chunk.DocumentID != documentID {
			kept = append(kept, chunk)
		}
	}
	idx.chunks = kept
}

func (idx *MemoryIndex) Clear() {
	idx.mu.Lock()
	idx.chunks = nil
	idx.mu.Unlock()
}

func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Dimension returns the embedding dimension of the indexed chunks, or 0
// when the index is empty.
func (idx *MemoryIndex) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, chunk := range idx.chunks {
		if len(chunk.Embedding) > 0 {
			return len(chunk.Embedding)
		}
	}
	return 0
}

// Search returns the topK chunks most similar to the query embedding,
// highest score first. An empty documentID searches every document.
// Chunks embedded at a different dimension are skipped.
func (idx *MemoryIndex) Search(queryEmbedding []float32, topK int, documentID string) []models.SearchResult {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]models.SearchResult, 0, len(idx.chunks))
	for _, chunk := range idx.chunks {
		if documentID != "" && chunk.DocumentID != documentID {
			continue
		}
		if len(chunk.Embedding) != len(queryEmbedding) {
			continue
		}

		score := cosineSimilarity(queryEmbedding, chunk.Embedding)
		results = append(results, models.SearchResult{
			Chunk: chunk,
			Score: float64(score),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	return results
}

// cosineSimilarity of two vectors, 0 when either has zero norm.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}
