package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	AI        AIConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	RAG       RAGConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	CORSOrigins    []string
}

type RedisConfig struct {
	Addr     string // empty disables the embedding cache
	Password string
	DB       int
	CacheTTL time.Duration
}

type AIConfig struct {
	Provider       string
	APIKey         string
	Model          string
	BaseURL        string
	EmbeddingModel string
	Timeout        time.Duration
	MaxTokens      int
	Temperature    float64
}

type EmbeddingConfig struct {
	RequestsPerSecond float64
	Burst             int
	Concurrency       int
}

type ChunkingConfig struct {
	MaxChunkSize      int
	MinChunkSize      int
	Overlap           int
	PreserveStructure bool
	SemanticSplitting bool
}

type RAGConfig struct {
	TopK int
}

type LogConfig struct {
	Level string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	port := getEnvInt("SERVER_PORT", 8080, &errs)
	maxUploadMB := getEnvInt("MAX_UPLOAD_MB", 32, &errs)
	redisDB := getEnvInt("REDIS_DB", 0, &errs)
	cacheTTL := getEnvDuration("EMBED_CACHE_TTL", 24*time.Hour, &errs)
	timeout := getEnvDuration("AI_TIMEOUT", llm.DefaultTimeout, &errs)
	maxTokens := getEnvInt("AI_MAX_TOKENS", llm.DefaultMaxTokens, &errs)
	temperature := getEnvFloat("AI_TEMPERATURE", llm.DefaultTemperature, &errs)

	embedDefaults := embedding.DefaultOptions()
	rps := getEnvFloat("EMBED_RATE_LIMIT", embedDefaults.RequestsPerSecond, &errs)
	burst := getEnvInt("EMBED_BURST", embedDefaults.Burst, &errs)
	concurrency := getEnvInt("EMBED_CONCURRENCY", embedDefaults.Concurrency, &errs)

	chunkDefaults := chunker.DefaultOptions()
	maxChunk := getEnvInt("CHUNK_MAX_SIZE", chunkDefaults.MaxChunkSize, &errs)
	minChunk := getEnvInt("CHUNK_MIN_SIZE", chunkDefaults.MinChunkSize, &errs)
	overlap := getEnvInt("CHUNK_OVERLAP", chunkDefaults.Overlap, &errs)
	preserve := getEnvBool("CHUNK_PRESERVE_STRUCTURE", chunkDefaults.PreserveStructure, &errs)
	semantic := getEnvBool("CHUNK_SEMANTIC_SPLITTING", chunkDefaults.SemanticSplitting, &errs)

	topK := getEnvInt("RAG_TOP_K", 5, &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			MaxUploadBytes: int64(maxUploadMB) << 20,
			CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			CacheTTL: cacheTTL,
		},
		AI: AIConfig{
			Provider:       getEnv("AI_PROVIDER", ""),
			APIKey:         getEnv("AI_API_KEY", ""),
			Model:          getEnv("AI_MODEL", ""),
			BaseURL:        getEnv("AI_BASE_URL", ""),
			EmbeddingModel: getEnv("AI_EMBEDDING_MODEL", ""),
			Timeout:        timeout,
			MaxTokens:      maxTokens,
			Temperature:    temperature,
		},
		Embedding: EmbeddingConfig{
			RequestsPerSecond: rps,
			Burst:             burst,
			Concurrency:       concurrency,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize:      maxChunk,
			MinChunkSize:      minChunk,
			Overlap:           overlap,
			PreserveStructure: preserve,
			SemanticSplitting: semantic,
		},
		RAG: RAGConfig{TopK: topK},
		Log: LogConfig{Level: getEnv("LOG_LEVEL", "info")},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "SERVER_PORT must be between 1 and 65535")
	}
	if c.Server.MaxUploadBytes <= 0 {
		problems = append(problems, "MAX_UPLOAD_MB must be positive")
	}
	if c.Chunking.MaxChunkSize <= 0 {
		problems = append(problems, "CHUNK_MAX_SIZE must be positive")
	}
	if c.Chunking.MinChunkSize <= 0 {
		problems = append(problems, "CHUNK_MIN_SIZE must be positive")
	}
	if c.Chunking.MinChunkSize > c.Chunking.MaxChunkSize {
		problems = append(problems, "CHUNK_MIN_SIZE must not exceed CHUNK_MAX_SIZE")
	}
	if c.Chunking.Overlap < 0 {
		problems = append(problems, "CHUNK_OVERLAP must not be negative")
	}
	if c.Embedding.Concurrency <= 0 {
		problems = append(problems, "EMBED_CONCURRENCY must be positive")
	}
	if c.RAG.TopK <= 0 {
		problems = append(problems, "RAG_TOP_K must be positive")
	}
	if c.AI.MaxTokens <= 0 {
		problems = append(problems, "AI_MAX_TOKENS must be positive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LLMConfig converts the AI section for the engine.
func (a AIConfig) LLMConfig() llm.Config {
	return llm.Config{
		Provider:       a.Provider,
		APIKey:         a.APIKey,
		Model:          a.Model,
		BaseURL:        a.BaseURL,
		EmbeddingModel: a.EmbeddingModel,
		Timeout:        a.Timeout,
		MaxTokens:      a.MaxTokens,
		Temperature:    a.Temperature,
	}
}

func (e EmbeddingConfig) Options(cache embedding.Cache) embedding.Options {
	return embedding.Options{
		RequestsPerSecond: e.RequestsPerSecond,
		Burst:             e.Burst,
		Concurrency:       e.Concurrency,
		Cache:             cache,
	}
}

func (c ChunkingConfig) Options() chunker.Options {
	return chunker.Options{
		MaxChunkSize:      c.MaxChunkSize,
		MinChunkSize:      c.MinChunkSize,
		Overlap:           c.Overlap,
		PreserveStructure: c.PreserveStructure,
		SemanticSplitting: c.SemanticSplitting,
	}
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not a log level", l.Level)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return d
}
