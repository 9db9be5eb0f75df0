package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"docquery/config"
	"docquery/controllers"
	"docquery/evaluation"
	"docquery/services"
	"docquery/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "evaluate":
			// usage: docquery evaluate [document_id]
			runEvaluation()
			return
		case "inspect":
			runInspect()
			return
		}
	}

	runServer()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Environment != "production" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zapCfg.Build()
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := storage.NewMongoStore(cfg)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("failed to ensure MongoDB indexes", zap.Error(err))
	}

	index := storage.NewMemoryIndex()
	loaded, err := index.Load(ctx, store)
	if err != nil {
		logger.Fatal("failed to warm vector index", zap.Error(err))
	}
	logger.Info("vector index warmed", zap.Int("chunks", loaded))

	embedder, err := services.NewEmbedder(cfg)
	if err != nil {
		logger.Fatal("failed to initialize embedder", zap.Error(err))
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(cors.Default())

	ragController := controllers.NewRAGController(cfg, store, index, embedder, logger)

	router.GET("/health", ragController.Health)
	router.GET("/model-status", ragController.ModelStatus)

	api := router.Group("/api")
	{
		api.POST("/documents", ragController.UploadDocument)
		api.GET("/documents", ragController.ListDocuments)
		api.GET("/documents/count", ragController.CountChunks)
		api.DELETE("/documents", ragController.ClearDocuments)
		api.DELETE("/documents/:id", ragController.DeleteDocument)
		api.POST("/query", ragController.Query)
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("docquery server starting",
		zap.String("addr", addr),
		zap.String("mongo_database", cfg.MongoDatabase),
		zap.String("ollama_url", cfg.OllamaURL),
		zap.String("embedder", embedder.Name()),
		zap.String("environment", cfg.Environment))

	if err := router.Run(addr); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func runEvaluation() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := storage.NewMongoStore(cfg)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	index := storage.NewMemoryIndex()
	if _, err := index.Load(ctx, store); err != nil {
		logger.Fatal("failed to warm vector index", zap.Error(err))
	}

	documentID := ""
	if len(os.Args) > 2 {
		documentID = os.Args[2]
		logger.Info("using provided document id", zap.String("document_id", documentID))
	} else {
		docs, err := store.GetDocuments(ctx)
		if err != nil || len(docs) == 0 {
			logger.Fatal("no documents found, upload a document first")
		}
		documentID = docs[0].ID
		logger.Info("using most recent document", zap.String("document_id", documentID), zap.String("title", docs[0].Title))
	}

	datasetPath := "evaluation/dataset.json"
	questions, err := evaluation.LoadDataset(datasetPath)
	if err != nil {
		logger.Fatal("failed to load dataset", zap.String("path", datasetPath), zap.Error(err))
	}
	logger.Info("dataset loaded", zap.Int("questions", len(questions)), zap.String("path", datasetPath))

	embedder, err := services.NewEmbedder(cfg)
	if err != nil {
		logger.Fatal("failed to initialize embedder", zap.Error(err))
	}

	retriever := services.NewRetriever(index, embedder)
	evaluator := evaluation.NewEvaluator(cfg, retriever)

	report, err := evaluator.Evaluate(questions, documentID)
	if err != nil {
		logger.Fatal("evaluation failed", zap.Error(err))
	}

	evaluation.PrintSummary(report)

	outputFile := "evaluation/results/baseline.json"
	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		logger.Fatal("failed to create results directory", zap.Error(err))
	}
	if err := evaluation.SaveReport(report, outputFile); err != nil {
		logger.Fatal("failed to save report", zap.Error(err))
	}

	logger.Info("evaluation complete", zap.String("results", outputFile))
}

// runInspect prints the stored documents with chunk counts and a preview of
// their first chunks.
func runInspect() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewMongoStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to MongoDB: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	docs, err := store.GetDocuments(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list documents: %v\n", err)
		os.Exit(1)
	}

	if len(docs) == 0 {
		fmt.Println("No documents stored.")
		return
	}

	fmt.Printf("Stored documents: %d\n\n", len(docs))
	for _, doc := range docs {
		fmt.Printf("Document ID: %s\n", doc.ID)
		fmt.Printf("Title:       %s\n", doc.Title)
		fmt.Printf("Source:      %s (%s)\n", doc.Filename, doc.ContentType)
		fmt.Printf("Chunks:      %d (%d chars total)\n", doc.TotalChunks, doc.TotalChars)
		fmt.Printf("Uploaded:    %s\n", doc.UploadedAt.Format("2006-01-02 15:04:05"))

		chunks, err := store.GetChunksByDocumentID(ctx, doc.ID)
		if err != nil {
			fmt.Printf("  (failed to load chunks: %v)\n\n", err)
			continue
		}

		fmt.Println("Sample chunks:")
		for i, chunk := range chunks {
			if i >= 3 {
				break
			}
			preview := chunk.Text
			if len(preview) > 100 {
				preview = preview[:100] + "..."
			}
			fmt.Printf("  %d. %s\n", i+1, preview)
		}
		fmt.Println()
	}
}
