package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	ChunkCollection string `yaml:"chunk_collection"`
	DocCollection   string `yaml:"doc_collection"`

	OllamaURL        string `yaml:"ollama_url"` // "http://localhost:11434"
	EmbedProvider    string `yaml:"embed_provider"` // ollama, openai or simple
	OllamaEmbedModel string `yaml:"ollama_embed_model"`
	OpenAIEmbedModel string `yaml:"openai_embed_model"`
	OpenAIAPIKey     string `yaml:"-"`
	OllamaLLMModel   string `yaml:"ollama_llm_model"`

	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	NumCtx      int     `yaml:"num_ctx"`

	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`

	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	UploadDir    string `yaml:"upload_dir"`
}

// Load builds the configuration from an optional YAML file (CONFIG_PATH,
// default config.yaml) with environment variables taking precedence. A
// missing file is fine; an unreadable or malformed one is an error.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if err := loadFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MongoURI:        "mongodb://localhost:27017",
		MongoDatabase:   "docquery",
		ChunkCollection: "chunks",
		DocCollection:   "documents",

		OllamaURL:        "http://localhost:11434",
		EmbedProvider:    "ollama",
		OllamaEmbedModel: "nomic-embed-text",
		OpenAIEmbedModel: "text-embedding-3-small",
		OllamaLLMModel:   "mistral",

		Temperature: 0.7,
		TopP:        0.9,
		NumCtx:      4096,

		Port:        "8080",
		Environment: "development",

		ChunkSize:    1000,
		ChunkOverlap: 200,
		TopK:         3,
		UploadDir:    "uploads",
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	getEnv := func(key string, target *string) {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}

	getEnvInt := func(key string, target *int) {
		if valueStr := os.Getenv(key); valueStr != "" {
			if value, err := strconv.Atoi(valueStr); err == nil {
				*target = value
			}
		}
	}

	getEnvFloat := func(key string, target *float64) {
		if valueStr := os.Getenv(key); valueStr != "" {
			if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
				*target = value
			}
		}
	}

	getEnv("MONGO_URI", &cfg.MongoURI)
	getEnv("MONGO_DATABASE", &cfg.MongoDatabase)
	getEnv("MONGO_CHUNK_COLLECTION", &cfg.ChunkCollection)
	getEnv("MONGO_DOC_COLLECTION", &cfg.DocCollection)

	getEnv("OLLAMA_URL", &cfg.OllamaURL)
	getEnv("EMBEDDING_PROVIDER", &cfg.EmbedProvider)
	getEnv("OLLAMA_EMBEDDING_MODEL", &cfg.OllamaEmbedModel)
	getEnv("OPENAI_EMBEDDING_MODEL", &cfg.OpenAIEmbedModel)
	getEnv("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	getEnv("OLLAMA_LLM_MODEL", &cfg.OllamaLLMModel)

	getEnvFloat("GENERATION_TEMPERATURE", &cfg.Temperature)
	getEnvFloat("GENERATION_TOP_P", &cfg.TopP)
	getEnvInt("GENERATION_NUM_CTX", &cfg.NumCtx)

	getEnv("PORT", &cfg.Port)
	getEnv("ENVIRONMENT", &cfg.Environment)

	getEnvInt("CHUNK_SIZE", &cfg.ChunkSize)
	getEnvInt("CHUNK_OVERLAP", &cfg.ChunkOverlap)
	getEnvInt("TOP_K", &cfg.TopK)
	getEnv("UPLOAD_DIR", &cfg.UploadDir)
}
