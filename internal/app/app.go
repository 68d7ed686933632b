// Package app provides application initialization and dependency injection.
//
// Setup builds the full component graph from configuration: database pool
// with migrations, Genkit with the configured provider plugins, embedding
// generator, vector store, session store, chat model and the retrieval
// pipeline. Components receive their dependencies at construction; nothing
// reaches for globals.
package app

import (
	"siterag/internal/chat"
	"siterag/internal/config"
	"siterag/internal/ingest"
	"siterag/internal/log"
	"siterag/internal/rag"
	"siterag/internal/session"
	"siterag/internal/store"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Pool     *pgxpool.Pool
	Store    store.Store
	Sessions *session.Store
	Model    chat.Model
	Pipeline *rag.Pipeline

	otelCleanup func()
}

// Close releases all resources. Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}

	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// NewLoader builds an ingestion loader sharing the App's store, using crawl
// politeness settings from configuration.
func (a *App) NewLoader() (*ingest.Loader, error) {
	fetcher := ingest.NewCollyFetcher(
		a.Config.CrawlParallelism,
		millis(a.Config.CrawlDelayMs),
		millis(a.Config.CrawlTimeoutMs),
		a.Logger,
	)

	pattern := ""
	if a.Config.FilterURLs {
		pattern = a.Config.FilterPattern
	}

	return ingest.New(ingest.Config{
		SitemapURL:    a.Config.SitemapURL,
		BlockSize:     a.Config.BatchSize,
		FilterPattern: pattern,
	}, fetcher, a.Store, a.Logger)
}
