package controllers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"docquery/config"
	"docquery/models"
	"docquery/services"
	"docquery/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DocumentStore is the persistence surface the controller depends on.
// *storage.MongoStore implements it.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc models.Document) error
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	GetDocuments(ctx context.Context) ([]models.Document, error)
	GetDocumentByID(ctx context.Context, documentID string) (*models.Document, error)
	DeleteDocument(ctx context.Context, documentID string) error
	DeleteAll(ctx context.Context) error
	CountChunks(ctx context.Context) (int64, error)
}

type RAGController struct {
	config    *config.Config
	store     DocumentStore
	index     *storage.MemoryIndex
	extractor *services.Extractor
	chunker   *services.Chunker
	embedder  services.Embedder
	generator *services.Generator
	retriever *services.Retriever
	logger    *zap.Logger
}

func NewRAGController(cfg *config.Config, store DocumentStore, index *storage.MemoryIndex, embedder services.Embedder, logger *zap.Logger) *RAGController {
	generator := services.NewGenerator(cfg.OllamaURL, cfg.OllamaLLMModel, services.GenerateOptions{
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		NumCtx:      cfg.NumCtx,
	})

	if tester, ok := embedder.(interface{ TestConnection() error }); ok {
		if err := tester.TestConnection(); err != nil {
			logger.Warn("embedder connection test failed", zap.Error(err))
		} else {
			logger.Info("connected to embedding backend", zap.String("embedder", embedder.Name()))
		}
	}

	if err := generator.TestConnection(); err != nil {
		logger.Warn("LLM connection test failed", zap.Error(err))
	} else {
		logger.Info("connected to Ollama LLM", zap.String("model", cfg.OllamaLLMModel))
	}

	return &RAGController{
		config:    cfg,
		store:     store,
		index:     index,
		extractor: services.NewExtractor(),
		chunker:   services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder:  embedder,
		generator: generator,
		retriever: services.NewRetriever(index, embedder),
		logger:    logger,
	}
}

// UploadDocument accepts a multipart upload, extracts its text, chunks and
// embeds it, persists everything and adds the chunks to the live index.
func (rc *RAGController) UploadDocument(c *gin.Context) {
	startTime := time.Now()

	var req models.UploadDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	if file.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is empty"})
		return
	}

	if err := os.MkdirAll(rc.config.UploadDir, 0o755); err != nil {
		rc.logger.Error("failed to create upload dir", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}

	// stored under a fresh UUID so concurrent uploads of the same
	// filename cannot collide
	tempPath := filepath.Join(rc.config.UploadDir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		rc.logger.Error("failed to save upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil {
			rc.logger.Warn("failed to remove temp upload", zap.String("path", tempPath), zap.Error(err))
		}
	}()

	contentType, err := rc.extractor.DetectKind(tempPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text, err := rc.extractor.ExtractFile(tempPath)
	if err != nil {
		rc.logger.Warn("text extraction failed",
			zap.String("filename", file.Filename),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chunks := rc.chunker.ChunkText(text)
	if len(chunks) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No text content could be extracted from the document"})
		return
	}

	title := req.Title
	if title == "" {
		title = file.Filename
	}

	documentID := uuid.NewString()
	ctx := c.Request.Context()

	dim, err := rc.embedder.Dimension(ctx)
	if err != nil {
		rc.logger.Error("failed to determine embedding dimension", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate embeddings"})
		return
	}
	if indexed := rc.index.Dimension(); indexed > 0 && indexed != dim {
		rc.logger.Warn("embedding dimension mismatch",
			zap.Int("indexed", indexed),
			zap.Int("embedder", dim))
		c.JSON(http.StatusConflict, gin.H{"error": "Embedding dimension does not match the indexed chunks; clear all documents before switching embedding models"})
		return
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := rc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		rc.logger.Error("embedding generation failed",
			zap.String("document_id", documentID),
			zap.Int("chunks", len(chunks)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate embeddings"})
		return
	}

	now := time.Now()
	chunkDocs := make([]models.Chunk, len(chunks))
	totalChars := 0
	for i, chunk := range chunks {
		// rune counts throughout, matching the span offsets
		totalChars += chunk.End - chunk.Start
		chunkDocs[i] = models.Chunk{
			ID:         primitive.NewObjectID(),
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       chunk.Text,
			Embedding:  embeddings[i],
			Metadata: models.ChunkMetadata{
				Source:         file.Filename,
				Title:          title,
				CharacterStart: chunk.Start,
				CharacterEnd:   chunk.End,
				ChunkSize:      chunk.End - chunk.Start,
			},
			CreatedAt: now,
		}
	}

	doc := models.Document{
		ID:           documentID,
		Filename:     file.Filename,
		Title:        title,
		ContentType:  contentType,
		TotalChunks:  len(chunks),
		TotalChars:   totalChars,
		ChunkSize:    rc.config.ChunkSize,
		ChunkOverlap: rc.config.ChunkOverlap,
		UploadedAt:   now,
	}

	// the document row goes in first; a chunk-insert failure rolls it
	// back, so chunks never outlive their document
	if err := rc.store.InsertDocument(ctx, doc); err != nil {
		rc.logger.Error("failed to store document", zap.String("document_id", documentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store document"})
		return
	}
	if err := rc.store.InsertChunks(ctx, chunkDocs); err != nil {
		rc.logger.Error("failed to store chunks", zap.String("document_id", documentID), zap.Error(err))
		if delErr := rc.store.DeleteDocument(ctx, documentID); delErr != nil {
			rc.logger.Error("failed to roll back document", zap.String("document_id", documentID), zap.Error(delErr))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store chunks"})
		return
	}

	rc.index.Add(chunkDocs)

	metrics := services.CalculateMetrics(chunks, text)
	processingTime := time.Since(startTime)
	rc.logger.Info("document indexed",
		zap.String("document_id", documentID),
		zap.String("filename", file.Filename),
		zap.Int("chunks", metrics.TotalChunks),
		zap.Float64("avg_chunk_size", metrics.AvgChunkSize),
		zap.Duration("took", processingTime))

	c.JSON(http.StatusOK, models.UploadDocumentResponse{
		DocumentID:       documentID,
		Filename:         file.Filename,
		Title:            title,
		TotalChunks:      len(chunks),
		TotalChars:       totalChars,
		ProcessingTimeMs: processingTime.Milliseconds(),
		Status:           "success",
	})
}

// Query retrieves the most relevant chunks and asks the LLM to answer.
func (rc *RAGController) Query(c *gin.Context) {
	startTime := time.Now()

	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = rc.config.TopK
	}

	ctx := c.Request.Context()
	results, err := rc.retriever.Retrieve(ctx, req.Question, topK, req.DocumentID)
	if err != nil {
		rc.logger.Error("retrieval failed", zap.String("question", req.Question), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve chunks"})
		return
	}

	if len(results) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No relevant chunks found"})
		return
	}

	contexts := make([]string, len(results))
	for i, result := range results {
		contexts[i] = result.Chunk.Text
	}

	answer, err := rc.generator.GenerateResponse(ctx, req.Question, contexts)
	if err != nil {
		rc.logger.Error("generation failed", zap.String("question", req.Question), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
		return
	}

	sources := make([]models.SourceChunk, len(results))
	for i, result := range results {
		sources[i] = models.SourceChunk{
			ChunkID:  result.Chunk.ID.Hex(),
			Text:     result.Chunk.Text,
			Score:    result.Score,
			Metadata: result.Chunk.Metadata,
		}
	}

	processingTime := time.Since(startTime)
	rc.logger.Info("query answered",
		zap.String("question", req.Question),
		zap.Int("sources", len(sources)),
		zap.Duration("took", processingTime))

	c.JSON(http.StatusOK, models.QueryResponse{
		Answer:           answer,
		Sources:          sources,
		ProcessingTimeMs: processingTime.Milliseconds(),
	})
}

func (rc *RAGController) ListDocuments(c *gin.Context) {
	docs, err := rc.store.GetDocuments(c.Request.Context())
	if err != nil {
		rc.logger.Error("failed to list documents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve documents"})
		return
	}

	if docs == nil {
		docs = []models.Document{}
	}

	c.JSON(http.StatusOK, docs)
}

func (rc *RAGController) CountChunks(c *gin.Context) {
	count, err := rc.store.CountChunks(c.Request.Context())
	if err != nil {
		rc.logger.Error("failed to count chunks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count chunks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// DeleteDocument removes one document from the store and the live index.
func (rc *RAGController) DeleteDocument(c *gin.Context) {
	documentID := c.Param("id")
	ctx := c.Request.Context()

	doc, err := rc.store.GetDocumentByID(ctx, documentID)
	if err != nil {
		rc.logger.Error("failed to look up document", zap.String("document_id", documentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	if err := rc.store.DeleteDocument(ctx, documentID); err != nil {
		rc.logger.Error("failed to delete document", zap.String("document_id", documentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
		return
	}

	rc.index.Remove(documentID)
	rc.logger.Info("document deleted", zap.String("document_id", documentID))

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "document_id": documentID})
}

// ClearDocuments wipes the store and the index.
func (rc *RAGController) ClearDocuments(c *gin.Context) {
	if err := rc.store.DeleteAll(c.Request.Context()); err != nil {
		rc.logger.Error("failed to clear documents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear documents"})
		return
	}

	rc.index.Clear()
	rc.logger.Info("all documents cleared")

	c.JSON(http.StatusOK, gin.H{"status": "cleared", "count": 0})
}

func (rc *RAGController) Health(c *gin.Context) {
	count, err := rc.store.CountChunks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	llmReachable := rc.generator.TestConnection() == nil

	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"service":       "docquery",
		"chunk_count":   count,
		"indexed":       rc.index.Len(),
		"llm_reachable": llmReachable,
	})
}

// ModelStatus reports whether the configured LLM is pulled on the Ollama
// server.
func (rc *RAGController) ModelStatus(c *gin.Context) {
	loaded, names, err := rc.generator.ModelLoaded(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, models.ModelStatusResponse{
			Status:      "error",
			ModelLoaded: false,
			Error:       err.Error(),
		})
		return
	}

	status := "ready"
	if !loaded {
		status = "model_not_loaded"
	}

	c.JSON(http.StatusOK, models.ModelStatusResponse{
		Status:      status,
		ModelLoaded: loaded,
		Models:      names,
	})
}
