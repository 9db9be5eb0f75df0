package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docquery/config"
	"docquery/models"
	"docquery/services"
	"docquery/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// fakeOllama serves just enough of the Ollama API for the handlers under
// test: model listing and generation.
func fakeOllama(t *testing.T, answer string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]string{{"name": "mistral:latest"}},
		})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": answer,
			"done":     true,
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// fakeStore is an in-memory DocumentStore with injectable failures.
type fakeStore struct {
	insertDocErr    error
	insertChunksErr error

	docs    []models.Document
	chunks  []models.Chunk
	deleted []string
}

func (s *fakeStore) InsertDocument(_ context.Context, doc models.Document) error {
	if s.insertDocErr != nil {
		return s.insertDocErr
	}
	s.docs = append(s.docs, doc)
	return nil
}

func (s *fakeStore) InsertChunks(_ context.Context, chunks []models.Chunk) error {
	if s.insertChunksErr != nil {
		return s.insertChunksErr
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *fakeStore) GetDocuments(context.Context) ([]models.Document, error) {
	return s.docs, nil
}

func (s *fakeStore) GetDocumentByID(_ context.Context, documentID string) (*models.Document, error) {
	for i := range s.docs {
		if s.docs[i].ID == documentID {
			return &s.docs[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) DeleteDocument(_ context.Context, documentID string) error {
	s.deleted = append(s.deleted, documentID)

	docs := s.docs[:0]
	for _, doc := range s.docs {
		if doc.ID != documentID {
			docs = append(docs, doc)
		}
	}
	s.docs = docs

	chunks := s.chunks[:0]
	for _, chunk := range s.chunks {
		if chunk.DocumentID != documentID {
			chunks = append(chunks, chunk)
		}
	}
	s.chunks = chunks
	return nil
}

func (s *fakeStore) DeleteAll(context.Context) error {
	s.docs, s.chunks = nil, nil
	return nil
}

func (s *fakeStore) CountChunks(context.Context) (int64, error) {
	return int64(len(s.chunks)), nil
}

func newTestController(t *testing.T, ollamaURL string, store DocumentStore) (*RAGController, *storage.MemoryIndex, services.Embedder) {
	t.Helper()

	cfg := &config.Config{
		OllamaURL:      ollamaURL,
		OllamaLLMModel: "mistral",
		ChunkSize:      1000,
		ChunkOverlap:   200,
		TopK:           3,
		UploadDir:      t.TempDir(),
	}

	index := storage.NewMemoryIndex()
	embedder := services.NewSimpleEmbedder(32)

	return NewRAGController(cfg, store, index, embedder, zap.NewNop()), index, embedder
}

func seedIndex(t *testing.T, index *storage.MemoryIndex, embedder services.Embedder, documentID string, texts []string) {
	t.Helper()

	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		embedding, err := embedder.Embed(context.Background(), text)
		require.NoError(t, err)
		chunks[i] = models.Chunk{
			ID:         primitive.NewObjectID(),
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       text,
			Embedding:  embedding,
			CreatedAt:  time.Now(),
		}
	}
	index.Add(chunks)
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadDocument(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := fakeOllama(t, "unused")

	t.Run("stores document and chunks", func(t *testing.T) {
		store := &fakeStore{}
		controller, index, _ := newTestController(t, server.URL, store)

		router := gin.New()
		router.POST("/api/documents", controller.UploadDocument)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, uploadRequest(t, "notes.txt", "Jupiter is the largest planet in the solar system."))

		require.Equal(t, http.StatusOK, w.Code)

		var resp models.UploadDocumentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "notes.txt", resp.Filename)
		assert.Equal(t, "success", resp.Status)

		require.Len(t, store.docs, 1)
		assert.Equal(t, resp.DocumentID, store.docs[0].ID)
		assert.Equal(t, resp.TotalChunks, len(store.chunks))
		assert.Equal(t, len(store.chunks), index.Len())
	})

	t.Run("chunk insert failure rolls back the document", func(t *testing.T) {
		store := &fakeStore{insertChunksErr: errors.New("write failed")}
		controller, index, _ := newTestController(t, server.URL, store)

		router := gin.New()
		router.POST("/api/documents", controller.UploadDocument)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, uploadRequest(t, "notes.txt", "Jupiter is the largest planet in the solar system."))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		require.Len(t, store.deleted, 1, "document must be rolled back")
		assert.Empty(t, store.docs)
		assert.Empty(t, store.chunks)
		assert.Zero(t, index.Len())
	})

	t.Run("document insert failure stores nothing", func(t *testing.T) {
		store := &fakeStore{insertDocErr: errors.New("write failed")}
		controller, index, _ := newTestController(t, server.URL, store)

		router := gin.New()
		router.POST("/api/documents", controller.UploadDocument)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, uploadRequest(t, "notes.txt", "Jupiter is the largest planet in the solar system."))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Empty(t, store.chunks)
		assert.Zero(t, index.Len())
	})

	t.Run("rejects mismatched embedding dimension", func(t *testing.T) {
		store := &fakeStore{}
		controller, index, _ := newTestController(t, server.URL, store)
		// the controller embeds at dimension 32; the index holds 16
		seedIndex(t, index, services.NewSimpleEmbedder(16), "doc-old", []string{"existing chunk"})

		router := gin.New()
		router.POST("/api/documents", controller.UploadDocument)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, uploadRequest(t, "notes.txt", "Jupiter is the largest planet in the solar system."))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Empty(t, store.docs)
		assert.Empty(t, store.chunks)
	})

	t.Run("no file field", func(t *testing.T) {
		controller, _, _ := newTestController(t, server.URL, &fakeStore{})

		router := gin.New()
		router.POST("/api/documents", controller.UploadDocument)

		var buf bytes.Buffer
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
		req.Header.Set("Content-Type", "multipart/form-data; boundary=xxx")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := fakeOllama(t, "Jupiter is the largest planet.")

	controller, index, embedder := newTestController(t, server.URL, &fakeStore{})
	seedIndex(t, index, embedder, "doc-1", []string{
		"Jupiter is the largest planet in the solar system.",
		"Sourdough bread needs a mature starter.",
	})

	router := gin.New()
	router.POST("/api/query", controller.Query)

	t.Run("answers from indexed chunks", func(t *testing.T) {
		body, _ := json.Marshal(models.QueryRequest{Question: "Which planet is largest?"})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp models.QueryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Jupiter is the largest planet.", resp.Answer)
		assert.NotEmpty(t, resp.Sources)
		assert.Contains(t, resp.Sources[0].Text, "Jupiter")
	})

	t.Run("missing question", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte(`{not json`)))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown document filter", func(t *testing.T) {
		body, _ := json.Marshal(models.QueryRequest{Question: "anything", DocumentID: "no-such-doc"})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestQueryEmptyIndex(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := fakeOllama(t, "unused")

	controller, _, _ := newTestController(t, server.URL, &fakeStore{})

	router := gin.New()
	router.POST("/api/query", controller.Query)

	body, _ := json.Marshal(models.QueryRequest{Question: "Which planet is largest?"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDocument(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := fakeOllama(t, "unused")

	store := &fakeStore{docs: []models.Document{{ID: "doc-1", Title: "Notes"}}}
	controller, index, embedder := newTestController(t, server.URL, store)
	seedIndex(t, index, embedder, "doc-1", []string{"some chunk"})

	router := gin.New()
	router.DELETE("/api/documents/:id", controller.DeleteDocument)

	t.Run("removes document and indexed chunks", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/documents/doc-1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, store.docs)
		assert.Zero(t, index.Len())
	})

	t.Run("unknown document", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/documents/nope", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := fakeOllama(t, "unused")

	controller, _, _ := newTestController(t, server.URL, &fakeStore{})

	router := gin.New()
	router.GET("/health", controller.Health)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, true, resp["llm_reachable"])
}

func TestModelStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("model loaded", func(t *testing.T) {
		server := fakeOllama(t, "unused")
		controller, _, _ := newTestController(t, server.URL, &fakeStore{})

		router := gin.New()
		router.GET("/model-status", controller.ModelStatus)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/model-status", nil))

		require.Equal(t, http.StatusOK, w.Code)

		var resp models.ModelStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
		assert.True(t, resp.ModelLoaded)
		assert.Contains(t, resp.Models, "mistral:latest")
	})

	t.Run("ollama unreachable", func(t *testing.T) {
		controller, _, _ := newTestController(t, "http://127.0.0.1:1", &fakeStore{})

		router := gin.New()
		router.GET("/model-status", controller.ModelStatus)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/model-status", nil))

		require.Equal(t, http.StatusOK, w.Code)

		var resp models.ModelStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.False(t, resp.ModelLoaded)
	})
}
