package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// Validation bounds.
const (
	maxBatchSize   = 1000
	maxTemperature = 2.0
	maxMaxTokens   = 65536
	maxTopK        = 100
)

// Validate checks the configuration for invalid values. All failures wrap a
// sentinel error so callers can classify them with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateRetrieval(); err != nil {
		return err
	}
	if err := c.validatePostgres(); err != nil {
		return err
	}

	return nil
}

// validateIngest checks ingestion settings. SitemapURL is optional (only the
// ingest command needs it) but must be well-formed when set.
func (c *Config) validateIngest() error {
	if c.SitemapURL != "" {
		parsed, err := url.Parse(c.SitemapURL)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidSitemapURL, c.SitemapURL, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("%w: %q must use http or https", ErrInvalidSitemapURL, c.SitemapURL)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%w: %q has no host", ErrInvalidSitemapURL, c.SitemapURL)
		}
	}

	if c.BatchSize < 1 || c.BatchSize > maxBatchSize {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidBatchSize, c.BatchSize, maxBatchSize)
	}

	if c.FilterURLs {
		if c.FilterPattern == "" {
			return fmt.Errorf("%w: filtering enabled but pattern is empty", ErrInvalidFilterPattern)
		}
		if _, err := regexp.Compile(c.FilterPattern); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidFilterPattern, c.FilterPattern, err)
		}
	}

	return nil
}

// validateProviders checks provider selections and their prerequisites.
func (c *Config) validateProviders() error {
	if c.VectorStore != StorePostgres {
		return fmt.Errorf("%w: vector store %q (supported: %s)", ErrInvalidProvider, c.VectorStore, StorePostgres)
	}

	switch c.EmbeddingProvider {
	case EmbedGemini, EmbedNomic:
	default:
		return fmt.Errorf("%w: embedding provider %q (supported: %s, %s)",
			ErrInvalidProvider, c.EmbeddingProvider, EmbedGemini, EmbedNomic)
	}

	switch c.ChatProvider {
	case ChatGemini, ChatLlama:
	default:
		return fmt.Errorf("%w: chat provider %q (supported: %s, %s)",
			ErrInvalidProvider, c.ChatProvider, ChatGemini, ChatLlama)
	}

	// GEMINI_API_KEY is read by Genkit itself; we only verify presence when a
	// Gemini-backed provider is actually selected.
	if c.EmbeddingProvider == EmbedGemini || c.ChatProvider == ChatGemini {
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY (or GOOGLE_API_KEY) must be set for provider %q",
				ErrMissingAPIKey, EmbedGemini)
		}
	}

	if c.EmbeddingProvider == EmbedNomic || c.ChatProvider == ChatLlama {
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidOllamaHost, c.OllamaHost)
		}
	}

	if c.Temperature < 0 || c.Temperature > maxTemperature {
		return fmt.Errorf("%w: %v (must be 0-%v)", ErrInvalidTemperature, c.Temperature, maxTemperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > maxMaxTokens {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidMaxTokens, c.MaxTokens, maxMaxTokens)
	}

	return nil
}

// validateRetrieval checks retrieval tuning values. The score threshold is a
// distance bound, so zero is legal (exact matches only) and there is no fixed
// upper limit beyond non-negativity.
func (c *Config) validateRetrieval() error {
	if c.ScoreThreshold < 0 {
		return fmt.Errorf("%w: %v (must be >= 0)", ErrInvalidScoreThreshold, c.ScoreThreshold)
	}

	if c.TopKResults < 1 || c.TopKResults > maxTopK {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidTopK, c.TopKResults, maxTopK)
	}

	if c.Collection == "" {
		return fmt.Errorf("%w: collection name is empty", ErrInvalidCollection)
	}

	return nil
}

// validatePostgres checks PostgreSQL connection settings.
func (c *Config) validatePostgres() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: password is empty", ErrInvalidPostgresPassword)
	}

	return nil
}
