// Package store provides vector document storage with similarity search.
//
// The Store interface abstracts the backend; PostgreSQL with pgvector is the
// only production implementation. Documents are grouped into named collections
// so one database serves several ingested sites.
//
// Query failures degrade to empty result sets instead of propagating: a
// retrieval miss must never take down an interactive chat session. Write
// failures are returned, since losing ingested documents silently would
// corrupt the corpus.
package store

import (
	"context"
	"errors"
	"fmt"

	"siterag/internal/config"
	"siterag/internal/log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownProvider indicates the configured vector store is not supported.
var ErrUnknownProvider = errors.New("unknown vector store provider")

// Document is a stored text chunk with its source metadata.
// Metadata is flat string-to-string: keys in production are "source", "topic"
// and "subtopic", but the store does not interpret them beyond filtering.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Result is a similarity search hit. Score is the cosine distance between the
// query and the document embedding, so lower means more similar. HasScore is
// false when the backend could not produce a distance; such results must not
// be treated as relevant.
type Result struct {
	Document Document
	Score    float64
	HasScore bool
}

// Embedder generates vector embeddings for texts. Defined here on the
// consumer side; internal/embed provides the production implementation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the vector document store interface.
//
// QuerySimilar and Lookup log failures and return empty slices rather than
// errors. StoreDocuments and the collection operations return errors.
type Store interface {
	// StoreDocuments embeds and persists documents into the active collection.
	StoreDocuments(ctx context.Context, docs []Document) error

	// QuerySimilar returns the documents most similar to the query text,
	// ordered best first, with distance scores attached.
	QuerySimilar(ctx context.Context, query string, opts ...SearchOption) []Result

	// Lookup returns documents matching a metadata filter and an optional
	// content substring, without similarity ranking. Each filter key accepts
	// a set of values; a document matches when its metadata value is in the
	// set. Keys combine with AND logic.
	Lookup(ctx context.Context, filter map[string][]string, contains string, limit int) []Document

	// DeleteCollection removes every document in the active collection.
	DeleteCollection(ctx context.Context) error

	// ListCollections returns the names of all collections with their
	// document counts, sorted by name.
	ListCollections(ctx context.Context) ([]CollectionInfo, error)
}

// CollectionInfo describes one collection in the store.
type CollectionInfo struct {
	Name      string
	Documents int
}

// SearchOption configures similarity search using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK   int
	filter map[string]string
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithFilter restricts results to documents whose metadata contains the given
// key/value pair. Multiple filters combine with AND logic.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: 5}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// New creates the configured vector store implementation.
func New(cfg *config.Config, pool *pgxpool.Pool, embedder Embedder, logger log.Logger) (Store, error) {
	switch cfg.VectorStore {
	case config.StorePostgres:
		return NewPostgres(pool, embedder, cfg.Collection, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.VectorStore)
	}
}
