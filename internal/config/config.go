// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.siterag/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Ingest: sitemap URL, batch size, URL filtering, crawler politeness
//   - Retrieval: score threshold, top-k, collection name
//   - Providers: vector store, embedding model, chat model selection
//   - Storage: PostgreSQL connection (documents and session history)
//
// Security: the PostgreSQL password is never logged; MarshalJSON and String
// mask it. Validation lives in validation.go with sentinel errors so callers
// can check failure classes with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidSitemapURL indicates the sitemap URL is missing or malformed.
	ErrInvalidSitemapURL = errors.New("invalid sitemap URL")

	// ErrInvalidBatchSize indicates the ingest batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidFilterPattern indicates the URL filter pattern does not compile.
	ErrInvalidFilterPattern = errors.New("invalid filter pattern")

	// ErrInvalidProvider indicates a provider selection is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidScoreThreshold indicates the relevance threshold is out of range.
	ErrInvalidScoreThreshold = errors.New("invalid score threshold")

	// ErrInvalidTopK indicates the top-k result count is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidCollection indicates the collection name is empty.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

// Provider identifiers for the pluggable backends.
const (
	// Vector store providers.
	StorePostgres = "postgres"

	// Embedding providers.
	EmbedGemini = "gemini"
	EmbedNomic  = "nomic"

	// Chat providers.
	ChatGemini = "gemini"
	ChatLlama  = "llama"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Ingestion configuration
	SitemapURL    string `mapstructure:"sitemap_url" json:"sitemap_url"`
	BatchSize     int    `mapstructure:"batch_size" json:"batch_size"`
	FilterURLs    bool   `mapstructure:"filter_urls" json:"filter_urls"`
	FilterPattern string `mapstructure:"filter_pattern" json:"filter_pattern"`

	// Crawler politeness (applied to per-block page fetches)
	CrawlParallelism int `mapstructure:"crawl_parallelism" json:"crawl_parallelism"`
	CrawlDelayMs     int `mapstructure:"crawl_delay_ms" json:"crawl_delay_ms"`
	CrawlTimeoutMs   int `mapstructure:"crawl_timeout_ms" json:"crawl_timeout_ms"`

	// Vector store configuration
	VectorStore string `mapstructure:"vector_store" json:"vector_store"`
	Collection  string `mapstructure:"collection" json:"collection"`

	// Provider and model configuration
	EmbeddingProvider string `mapstructure:"embedding_provider" json:"embedding_provider"`
	ChatProvider      string `mapstructure:"chat_provider" json:"chat_provider"`

	GeminiChatModel      string `mapstructure:"gemini_chat_model" json:"gemini_chat_model"`
	GeminiEmbeddingModel string `mapstructure:"gemini_embedding_model" json:"gemini_embedding_model"`
	LlamaChatModel       string `mapstructure:"llama_chat_model" json:"llama_chat_model"`
	NomicEmbeddingModel  string `mapstructure:"nomic_embedding_model" json:"nomic_embedding_model"`
	OllamaHost           string `mapstructure:"ollama_host" json:"ollama_host"`

	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Retrieval configuration
	ScoreThreshold float64 `mapstructure:"score_threshold" json:"score_threshold"`
	TopKResults    int     `mapstructure:"top_k_results" json:"top_k_results"`

	// Storage configuration (documents and session history share one database)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability (optional OTLP trace export; empty endpoint disables it)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".siterag")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has highest priority for PostgreSQL config
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail-fast on invalid configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Ingestion defaults
	viper.SetDefault("batch_size", 50)
	viper.SetDefault("filter_urls", false)
	viper.SetDefault("filter_pattern", "")
	viper.SetDefault("crawl_parallelism", 2)
	viper.SetDefault("crawl_delay_ms", 1000)
	viper.SetDefault("crawl_timeout_ms", 30000)

	// Vector store defaults
	viper.SetDefault("vector_store", StorePostgres)
	viper.SetDefault("collection", "site_pages")

	// Provider defaults
	viper.SetDefault("embedding_provider", EmbedGemini)
	viper.SetDefault("chat_provider", ChatGemini)
	viper.SetDefault("gemini_chat_model", "gemini-2.5-flash")
	viper.SetDefault("gemini_embedding_model", "gemini-embedding-001")
	viper.SetDefault("llama_chat_model", "llama3.2")
	viper.SetDefault("nomic_embedding_model", "nomic-embed-text")
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)

	// Retrieval defaults
	viper.SetDefault("score_threshold", 0.5)
	viper.SetDefault("top_k_results", 5)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "siterag")
	viper.SetDefault("postgres_password", "siterag_dev_password")
	viper.SetDefault("postgres_db_name", "siterag")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Observability defaults (disabled until an endpoint is configured)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "siterag")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; validation only
// checks its presence when a Gemini-backed provider is selected.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("sitemap_url", "SITERAG_SITEMAP_URL")
	mustBind("filter_pattern", "SITERAG_FILTER_PATTERN")
	mustBind("collection", "SITERAG_COLLECTION")
	mustBind("embedding_provider", "SITERAG_EMBEDDING_PROVIDER")
	mustBind("chat_provider", "SITERAG_CHAT_PROVIDER")
	mustBind("ollama_host", "SITERAG_OLLAMA_HOST")
	mustBind("otlp_endpoint", "SITERAG_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 characters
// or fewer are fully masked to prevent substring matching; longer secrets
// keep their first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// ChatModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash" or "ollama/llama3.2".
func (c *Config) ChatModelName() string {
	switch c.ChatProvider {
	case ChatLlama:
		return "ollama/" + c.LlamaChatModel
	default:
		return "googleai/" + c.GeminiChatModel
	}
}

// EmbeddingModelName returns the bare embedding model identifier for the
// selected embedding provider.
func (c *Config) EmbeddingModelName() string {
	switch c.EmbeddingProvider {
	case EmbedNomic:
		return c.NomicEmbeddingModel
	default:
		return c.GeminiEmbeddingModel
	}
}
