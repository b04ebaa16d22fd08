// Package config provides configuration loading for ragd.
//
// Configuration is layered: built-in defaults, then the YAML file, then a
// .env file, then RAGD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Chunking strategies.
const (
	StrategySentence  = "sentence"
	StrategyOverlap   = "overlap"
	StrategyParagraph = "paragraph"
)

// Config holds the complete ragd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Storage     StorageConfig     `koanf:"storage"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Reranker    RerankerConfig    `koanf:"reranker"`
	Generator   GeneratorConfig   `koanf:"generator"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Cache       CacheConfig       `koanf:"cache"`
	Ingestion   IngestionConfig   `koanf:"ingestion"`
	Search      SearchConfig      `koanf:"search"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the relational store location.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// VectorStoreConfig selects the similarity index.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // sql, chromem, qdrant
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds embedded chromem-go settings.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig holds Qdrant gRPC settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
}

// RetryConfig describes a bounded exponential backoff.
type RetryConfig struct {
	MaxAttempts    int      `koanf:"max_attempts"`
	InitialBackoff Duration `koanf:"initial_backoff"`
	MaxBackoff     Duration `koanf:"max_backoff"`
	Multiplier     float64  `koanf:"multiplier"`
}

// EmbeddingsConfig holds embedding provider settings.
type EmbeddingsConfig struct {
	Provider  string      `koanf:"provider"` // tei, openai, fastembed
	BaseURL   string      `koanf:"base_url"`
	Model     string      `koanf:"model"`
	APIKey    Secret      `koanf:"api_key"`
	Dimension int         `koanf:"dimension"`
	BatchSize int         `koanf:"batch_size"`
	CacheDir  string      `koanf:"cache_dir"`
	Timeout   Duration    `koanf:"timeout"`
	Retry     RetryConfig `koanf:"retry"`
}

// RerankerConfig holds cross-encoder settings.
type RerankerConfig struct {
	Provider       string      `koanf:"provider"` // tei, lexical
	BaseURL        string      `koanf:"base_url"`
	Model          string      `koanf:"model"`
	ScoreThreshold float64     `koanf:"score_threshold"`
	Timeout        Duration    `koanf:"timeout"`
	Retry          RetryConfig `koanf:"retry"`
}

// GeneratorConfig holds answer generation settings.
type GeneratorConfig struct {
	BaseURL           string      `koanf:"base_url"`
	Model             string      `koanf:"model"`
	APIKey            Secret      `koanf:"api_key"`
	Temperature       float64     `koanf:"temperature"`
	MaxTokens         int         `koanf:"max_tokens"`
	RequestsPerMinute int         `koanf:"requests_per_minute"`
	Retry             RetryConfig `koanf:"retry"`
}

// ChunkingConfig holds chunker settings.
type ChunkingConfig struct {
	Strategy  string `koanf:"strategy"`
	MaxTokens int    `koanf:"max_tokens"`
	Overlap   int    `koanf:"overlap"`
	Tokenizer string `koanf:"tokenizer"` // wordpiece, tiktoken
	Encoding  string `koanf:"encoding"`
	// TokenizerPath points at a tokenizer.json. When empty the wordpiece
	// vocabulary is resolved from embeddings.model.
	TokenizerPath string `koanf:"tokenizer_path"`
}

// RetrievalConfig holds similarity retrieval settings.
type RetrievalConfig struct {
	DistanceThreshold float64 `koanf:"distance_threshold"`
	MaxCandidates     int     `koanf:"max_candidates"` // 0 means unlimited
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	Provider   string     `koanf:"provider"` // memory, nats, none
	TTL        Duration   `koanf:"ttl"`
	MaxEntries int        `koanf:"max_entries"`
	NATS       NATSConfig `koanf:"nats"`
}

// NATSConfig holds JetStream key-value cache settings.
type NATSConfig struct {
	URL      string `koanf:"url"`
	Bucket   string `koanf:"bucket"`
	Embedded bool   `koanf:"embedded"`
	StoreDir string `koanf:"store_dir"`
}

// IngestionConfig holds upload limits and preprocessing switches.
type IngestionConfig struct {
	MaxDocumentSize    int64    `koanf:"max_document_size"`
	SupportedFileTypes []string `koanf:"supported_file_types"`
	RedactSecrets      bool     `koanf:"redact_secrets"`
	AllowlistPath      string   `koanf:"allowlist_path"`
}

// SearchConfig holds the keyword index settings.
type SearchConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
	Caller   bool   `koanf:"caller"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SampleRate     float64  `koanf:"sample_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// DefaultSupportedFileTypes lists the extensions accepted when none are configured.
var DefaultSupportedFileTypes = []string{"txt", "md", "pdf", "html", "docx", "xlsx"}

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(2 * time.Minute),
		},
		Storage: StorageConfig{
			Path: "~/.local/share/ragd/ragd.db",
		},
		VectorStore: VectorStoreConfig{
			Provider: "sql",
			Chromem: ChromemConfig{
				Path:     "~/.local/share/ragd/vectors",
				Compress: true,
			},
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "ragd_chunks",
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "tei",
			BaseURL:   "http://localhost:8081",
			Model:     "BAAI/bge-base-en-v1.5",
			Dimension: 768,
			BatchSize: 32,
			CacheDir:  "~/.cache/ragd/models",
			Timeout:   Duration(30 * time.Second),
			Retry:     defaultModelRetry(),
		},
		Reranker: RerankerConfig{
			Provider:       "tei",
			BaseURL:        "http://localhost:8082",
			Model:          "BAAI/bge-reranker-v2-m3",
			ScoreThreshold: 0.0,
			Timeout:        Duration(30 * time.Second),
			Retry:          defaultModelRetry(),
		},
		Generator: GeneratorConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-3.5-turbo",
			Temperature:       0.7,
			MaxTokens:         512,
			RequestsPerMinute: 60,
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: Duration(time.Second),
				MaxBackoff:     Duration(10 * time.Second),
				Multiplier:     2,
			},
		},
		Chunking: ChunkingConfig{
			Strategy:  StrategySentence,
			MaxTokens: 512,
			Overlap:   128,
			Tokenizer: "wordpiece",
			Encoding:  "cl100k_base",
		},
		Retrieval: RetrievalConfig{
			DistanceThreshold: 0.3,
		},
		Cache: CacheConfig{
			Provider:   "memory",
			TTL:        Duration(time.Hour),
			MaxEntries: 1000,
			NATS: NATSConfig{
				URL:      "nats://127.0.0.1:4222",
				Bucket:   "qa_cache",
				StoreDir: "~/.local/share/ragd/nats",
			},
		},
		Ingestion: IngestionConfig{
			MaxDocumentSize:    10 << 20,
			SupportedFileTypes: append([]string(nil), DefaultSupportedFileTypes...),
			RedactSecrets:      true,
		},
		Search: SearchConfig{
			Enabled: true,
			Path:    "~/.local/share/ragd/keyword.bleve",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sampling: true,
			Caller:   true,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "ragd",
			SampleRate:     1.0,
			ExportInterval: Duration(15 * time.Second),
		},
	}
}

// Model loads are slow on cold start, so the first retry waits 4s.
func defaultModelRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: Duration(4 * time.Second),
		MaxBackoff:     Duration(10 * time.Second),
		Multiplier:     2,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server shutdown timeout must be positive"))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage path is required"))
	}

	switch c.VectorStore.Provider {
	case "sql", "chromem":
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			errs = append(errs, errors.New("qdrant host is required"))
		}
		if c.VectorStore.Qdrant.Collection == "" {
			errs = append(errs, errors.New("qdrant collection is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vectorstore provider %q", c.VectorStore.Provider))
	}

	switch c.Embeddings.Provider {
	case "tei", "openai":
		if c.Embeddings.BaseURL == "" {
			errs = append(errs, errors.New("embeddings base_url is required"))
		}
	case "fastembed":
	default:
		errs = append(errs, fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider))
	}
	if c.Embeddings.Dimension <= 0 {
		errs = append(errs, errors.New("embeddings dimension must be positive"))
	}
	if c.Embeddings.BatchSize <= 0 {
		errs = append(errs, errors.New("embeddings batch_size must be positive"))
	}

	switch c.Reranker.Provider {
	case "tei":
		if c.Reranker.BaseURL == "" {
			errs = append(errs, errors.New("reranker base_url is required"))
		}
	case "lexical":
	default:
		errs = append(errs, fmt.Errorf("unknown reranker provider %q", c.Reranker.Provider))
	}

	if c.Generator.Model == "" {
		errs = append(errs, errors.New("generator model is required"))
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generator temperature must be in [0,2], got %v", c.Generator.Temperature))
	}

	for name, r := range map[string]RetryConfig{
		"embeddings": c.Embeddings.Retry,
		"reranker":   c.Reranker.Retry,
		"generator":  c.Generator.Retry,
	} {
		if r.MaxAttempts < 1 {
			errs = append(errs, fmt.Errorf("%s retry max_attempts must be >= 1", name))
		}
		if r.MaxBackoff < r.InitialBackoff {
			errs = append(errs, fmt.Errorf("%s retry max_backoff must be >= initial_backoff", name))
		}
	}

	switch c.Chunking.Strategy {
	case StrategySentence, StrategyOverlap, StrategyParagraph:
	default:
		errs = append(errs, fmt.Errorf("unknown chunking strategy %q", c.Chunking.Strategy))
	}
	if c.Chunking.MaxTokens <= 0 {
		errs = append(errs, errors.New("chunking max_tokens must be positive"))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxTokens {
		errs = append(errs, fmt.Errorf("chunking overlap must be in [0,max_tokens), got %d", c.Chunking.Overlap))
	}
	switch c.Chunking.Tokenizer {
	case "wordpiece", "tiktoken":
	default:
		errs = append(errs, fmt.Errorf("unknown tokenizer %q", c.Chunking.Tokenizer))
	}

	if c.Retrieval.DistanceThreshold < 0 || c.Retrieval.DistanceThreshold > 2 {
		errs = append(errs, fmt.Errorf("retrieval distance_threshold must be in [0,2], got %v", c.Retrieval.DistanceThreshold))
	}
	if c.Retrieval.MaxCandidates < 0 {
		errs = append(errs, errors.New("retrieval max_candidates cannot be negative"))
	}

	switch c.Cache.Provider {
	case "memory", "none":
	case "nats":
		if !c.Cache.NATS.Embedded && c.Cache.NATS.URL == "" {
			errs = append(errs, errors.New("cache nats url is required unless embedded"))
		}
		if c.Cache.NATS.Bucket == "" {
			errs = append(errs, errors.New("cache nats bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache provider %q", c.Cache.Provider))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache ttl must be positive"))
	}

	if c.Ingestion.MaxDocumentSize <= 0 {
		errs = append(errs, errors.New("ingestion max_document_size must be positive"))
	}
	if len(c.Ingestion.SupportedFileTypes) == 0 {
		errs = append(errs, errors.New("ingestion supported_file_types cannot be empty"))
	}

	if c.Search.Enabled && c.Search.Path == "" {
		errs = append(errs, errors.New("search path is required when search is enabled"))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry endpoint is required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// NormalizeExtensions lowercases extensions and strips leading dots.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(e), ".")))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
