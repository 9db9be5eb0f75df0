package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is one uploaded file after extraction and indexing.
type Document struct {
	ID           string    `bson:"_id" json:"id"`
	Filename     string    `bson:"filename" json:"filename"`
	Title        string    `bson:"title" json:"title"`
	ContentType  string    `bson:"content_type" json:"content_type"`
	TotalChunks  int       `bson:"total_chunks" json:"total_chunks"`
	TotalChars   int       `bson:"total_chars" json:"total_chars"`
	ChunkSize    int       `bson:"chunk_size" json:"chunk_size"`
	ChunkOverlap int       `bson:"chunk_overlap" json:"chunk_overlap"`
	UploadedAt   time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

type Chunk struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DocumentID string             `bson:"document_id" json:"document_id"`
	ChunkIndex int                `bson:"chunk_index" json:"chunk_index"`
	Text       string             `bson:"text" json:"text"`
	Embedding  []float32          `bson:"embedding" json:"-"`
	Metadata   ChunkMetadata      `bson:"metadata" json:"metadata"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

type ChunkMetadata struct {
	Source         string `bson:"source" json:"source"`
	Title          string `bson:"title" json:"title"`
	CharacterStart int    `bson:"character_start" json:"character_start"`
	CharacterEnd   int    `bson:"character_end" json:"character_end"`
	ChunkSize      int    `bson:"chunk_size" json:"chunk_size"`
}

type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

type UploadDocumentRequest struct {
	Title string `form:"title"`
}

type UploadDocumentResponse struct {
	DocumentID       string `json:"document_id"`
	Filename         string `json:"filename"`
	Title            string `json:"title"`
	TotalChunks      int    `json:"total_chunks"`
	TotalChars       int    `json:"total_chars"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Status           string `json:"status"`
}

type QueryRequest struct {
	Question   string `json:"question" binding:"required"`
	DocumentID string `json:"document_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

type QueryResponse struct {
	Answer           string        `json:"answer"`
	Sources          []SourceChunk `json:"sources"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
}

type SourceChunk struct {
	ChunkID  string        `json:"chunk_id"`
	Text     string        `json:"text"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

type ModelStatusResponse struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	Models      []string `json:"models,omitempty"`
	Error       string   `json:"error,omitempty"`
}
