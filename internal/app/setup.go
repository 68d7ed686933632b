package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"siterag/db"
	"siterag/internal/chat"
	"siterag/internal/config"
	"siterag/internal/embed"
	"siterag/internal/log"
	"siterag/internal/rag"
	"siterag/internal/session"
	"siterag/internal/store"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder, err := embed.New(g, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	a.Store, err = store.New(cfg, pool, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	a.Sessions = session.NewStore(pool, logger)

	a.Model, err = chat.New(chat.Config{
		Genkit:      g,
		History:     a.Sessions,
		Logger:      logger,
		ModelName:   cfg.ChatModelName(),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}

	a.Pipeline = rag.New(a.Store, a.Model, cfg.TopKResults, cfg.ScoreThreshold, logger)

	return a, nil
}

// provideOtelShutdown sets up OTLP trace export before Genkit initialization
// so the span processor is registered on Genkit's TracerProvider from the
// start. An empty endpoint disables tracing entirely.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	// Genkit's TracerProvider reads these at initialization. Setup runs once
	// before any goroutines are spawned, so os.Setenv is safe here.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter failed, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("trace export enabled", "endpoint", cfg.OTLPEndpoint, "service", cfg.ServiceName)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the plugins the configured providers
// need. Mixed selections (Gemini chat with Nomic embeddings, or the reverse)
// load both plugins.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	needGoogle := cfg.ChatProvider == config.ChatGemini || cfg.EmbeddingProvider == config.EmbedGemini
	needOllama := cfg.ChatProvider == config.ChatLlama || cfg.EmbeddingProvider == config.EmbedNomic

	var (
		plugins      []api.Plugin
		ollamaPlugin *ollama.Ollama
	)
	if needGoogle {
		plugins = append(plugins, &googlegenai.GoogleAI{})
	}
	if needOllama {
		ollamaPlugin = &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		plugins = append(plugins, ollamaPlugin)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(plugins...))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}

	// Ollama requires explicit registration; there is no auto-discovery.
	if needOllama {
		if cfg.ChatProvider == config.ChatLlama {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
				Name: cfg.LlamaChatModel,
				Type: "chat",
			}, nil)
		}
		if cfg.EmbeddingProvider == config.EmbedNomic {
			ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.NomicEmbeddingModel, nil)
		}
	}

	logger.Info("genkit initialized",
		"chat_provider", cfg.ChatProvider,
		"embedding_provider", cfg.EmbeddingProvider)
	return g, nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
