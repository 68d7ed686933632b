package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"siterag/internal/log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds similarity queries so a slow vector scan cannot block
// an interactive session.
const searchTimeout = 10 * time.Second

// PostgresStore implements Store on PostgreSQL with the pgvector extension.
// Distance is cosine (the <=> operator), lower is better.
//
// PostgresStore is safe for concurrent use by multiple goroutines.
type PostgresStore struct {
	pool       *pgxpool.Pool
	embedder   Embedder
	collection string
	logger     log.Logger
}

// NewPostgres creates a store bound to one collection.
func NewPostgres(pool *pgxpool.Pool, embedder Embedder, collection string, logger log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresStore{
		pool:       pool,
		embedder:   embedder,
		collection: collection,
		logger:     logger.With("component", "store", "collection", collection),
	}
}

// StoreDocuments embeds all document contents in one batch and inserts them.
// The insert is transactional: either the whole batch lands or none of it
// does, which keeps re-ingestion of a failed block safe.
func (s *PostgresStore) StoreDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d documents: %w", len(docs), err)
	}
	if len(embeddings) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(embeddings), len(docs))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `
		INSERT INTO documents (id, collection, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)`

	for i, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}

		vec := pgvector.NewVector(embeddings[i])
		if _, err := tx.Exec(ctx, insert, uuid.NewString(), s.collection, doc.Content, metadataJSON, vec); err != nil {
			return fmt.Errorf("inserting document %d of %d: %w", i+1, len(docs), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %d documents: %w", len(docs), err)
	}

	s.logger.Info("stored documents", "count", len(docs))
	return nil
}

// QuerySimilar embeds the query and returns the nearest documents with their
// cosine distances. Failures are logged and yield an empty result set.
func (s *PostgresStore) QuerySimilar(ctx context.Context, query string, opts ...SearchOption) []Result {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embeddings, err := s.embedder.Embed(queryCtx, []string{query})
	if err != nil || len(embeddings) == 0 {
		s.logger.Error("query embedding failed", "error", err)
		return nil
	}
	queryVec := pgvector.NewVector(embeddings[0])

	// Filter metadata goes through json.Marshal and a parameterized JSONB
	// containment, never string interpolation.
	sql := `
		SELECT content, metadata, embedding <=> $1 AS score
		FROM documents
		WHERE collection = $2`
	args := []any{queryVec, s.collection}

	if len(cfg.filter) > 0 {
		filterJSON, err := json.Marshal(cfg.filter)
		if err != nil {
			s.logger.Error("marshaling search filter failed", "error", err)
			return nil
		}
		sql += ` AND metadata @> $3`
		args = append(args, filterJSON)
	}

	sql += fmt.Sprintf(` ORDER BY score ASC LIMIT $%d`, len(args)+1)
	args = append(args, cfg.topK)

	rows, err := s.pool.Query(queryCtx, sql, args...)
	if err != nil {
		s.logger.Error("similarity query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			content      string
			metadataJSON []byte
			score        float64
		)
		if err := rows.Scan(&content, &metadataJSON, &score); err != nil {
			s.logger.Error("scanning similarity row failed", "error", err)
			return nil
		}
		results = append(results, Result{
			Document: Document{
				Content:  content,
				Metadata: parseMetadata(metadataJSON, s.logger),
			},
			Score:    score,
			HasScore: true,
		})
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("reading similarity rows failed", "error", err)
		return nil
	}

	s.logger.Debug("similarity search done", "results", len(results), "top_k", cfg.topK)
	return results
}

// Lookup returns documents matching the metadata filter and an optional
// content substring (case-insensitive). No similarity ranking is applied;
// order is backend iteration order. Failures are logged and yield an empty
// result set.
func (s *PostgresStore) Lookup(ctx context.Context, filter map[string][]string, contains string, limit int) []Document {
	sql := `
		SELECT content, metadata
		FROM documents
		WHERE collection = $1`
	args := []any{s.collection}

	// Keys and values are both passed as parameters so no user input ever
	// reaches the SQL text.
	for key, values := range filter {
		sql += fmt.Sprintf(` AND metadata->>$%d = ANY($%d)`, len(args)+1, len(args)+2)
		args = append(args, key, values)
	}

	if contains != "" {
		sql += fmt.Sprintf(` AND content ILIKE $%d`, len(args)+1)
		args = append(args, "%"+contains+"%")
	}

	sql += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		s.logger.Error("lookup query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			content      string
			metadataJSON []byte
		)
		if err := rows.Scan(&content, &metadataJSON); err != nil {
			s.logger.Error("scanning lookup row failed", "error", err)
			return nil
		}
		docs = append(docs, Document{
			Content:  content,
			Metadata: parseMetadata(metadataJSON, s.logger),
		})
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("reading lookup rows failed", "error", err)
		return nil
	}

	return docs
}

// DeleteCollection removes all documents in the active collection.
func (s *PostgresStore) DeleteCollection(ctx context.Context) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1`, s.collection)
	if err != nil {
		return fmt.Errorf("deleting collection %q: %w", s.collection, err)
	}

	s.logger.Info("collection deleted", "documents_removed", tag.RowsAffected())
	return nil
}

// ListCollections returns every collection with its document count.
func (s *PostgresStore) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT collection, COUNT(*)
		FROM documents
		GROUP BY collection
		ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Documents); err != nil {
			return nil, fmt.Errorf("scanning collection row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading collection rows: %w", err)
	}

	return infos, nil
}

// parseMetadata unmarshals stored metadata, degrading to an empty map on
// malformed rows so one bad document cannot poison a result set.
func parseMetadata(data []byte, logger log.Logger) map[string]string {
	var metadata map[string]string
	if err := json.Unmarshal(data, &metadata); err != nil {
		logger.Warn("failed to parse document metadata", "error", err)
		return make(map[string]string)
	}
	return metadata
}
