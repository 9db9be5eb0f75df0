package storage

import (
	"context"
	"fmt"
	"time"

	"docquery/config"
	"docquery/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore handles MongoDB persistence for documents and chunks.
type MongoStore struct {
	client    *mongo.Client
	database  *mongo.Database
	chunks    *mongo.Collection
	documents *mongo.Collection
	config    *config.Config
}

func NewMongoStore(cfg *config.Config) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.MongoDatabase)

	return &MongoStore{
		client:    client,
		database:  database,
		chunks:    database.Collection(cfg.ChunkCollection),
		documents: database.Collection(cfg.DocCollection),
		config:    cfg,
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the document_id index on the chunk collection,
// used by filtered retrieval and per-document deletes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "document_id", Value: 1}},
		Options: options.Index().SetName("document_id_index"),
	}

	if _, err := s.chunks.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create chunk index: %w", err)
	}

	return nil
}

func (s *MongoStore) InsertDocument(ctx context.Context, doc models.Document) error {
	if _, err := s.documents.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to insert")
	}

	docs := make([]interface{}, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chunk
	}

	if _, err := s.chunks.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	return nil
}

// GetDocuments lists stored documents, most recent first.
func (s *MongoStore) GetDocuments(ctx context.Context) ([]models.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}})
	cursor, err := s.documents.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}

	return docs, nil
}

func (s *MongoStore) GetDocumentByID(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": documentID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return &doc, nil
}

func (s *MongoStore) GetChunksByDocumentID(ctx context.Context, documentID string) ([]models.Chunk, error) {
	opts := options.Find().SetSort(bson.D{{Key: "chunk_index", Value: 1}})
	cursor, err := s.chunks.Find(ctx, bson.M{"document_id": documentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find chunks: %w", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode chunks: %w", err)
	}

	return chunks, nil
}

// GetAllChunks returns every chunk with its embedding, used to warm the
// in-memory index at startup.
func (s *MongoStore) GetAllChunks(ctx context.Context) ([]models.Chunk, error) {
	cursor, err := s.chunks.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode chunks: %w", err)
	}

	return chunks, nil
}

// DeleteDocument removes a document row and all of its chunks.
func (s *MongoStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := s.documents.DeleteOne(ctx, bson.M{"_id": documentID}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// DeleteAll clears both collections.
func (s *MongoStore) DeleteAll(ctx context.Context) error {
	if _, err := s.chunks.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := s.documents.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (s *MongoStore) CountChunks(ctx context.Context) (int64, error) {
	count, err := s.chunks.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (s *MongoStore) CountDocuments(ctx context.Context) (int64, error) {
	count, err := s.documents.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
