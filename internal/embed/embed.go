// Package embed provides text embedding generation on top of Genkit.
//
// Two providers are supported: Gemini embeddings via the Google AI plugin and
// Nomic embeddings served by a local Ollama instance. Both are exposed through
// one batch-oriented Embed call so the store never cares which backend is
// active.
package embed

import (
	"context"
	"errors"
	"fmt"

	"siterag/internal/config"
	"siterag/internal/log"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
)

var (
	// ErrUnknownProvider indicates the configured embedding provider is not
	// supported.
	ErrUnknownProvider = errors.New("unknown embedding provider")

	// ErrEmbedderNotFound indicates the provider plugin did not register the
	// requested embedder.
	ErrEmbedderNotFound = errors.New("embedder not found")
)

// embedder is the slice of ai.Embedder the Generator consumes. Tests
// substitute a fake.
type embedder interface {
	Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)
}

// Generator produces embeddings through a Genkit-registered embedder.
// It satisfies the store.Embedder interface.
//
// Generator is safe for concurrent use by multiple goroutines.
type Generator struct {
	embedder embedder
	model    string
	logger   log.Logger
}

// New looks up the embedder registered by the active provider plugin.
// The Ollama embedder is registered during Genkit initialization and keyed by
// the server address; the Gemini embedder is resolved by model name.
func New(g *genkit.Genkit, cfg *config.Config, logger log.Logger) (*Generator, error) {
	var emb ai.Embedder

	switch cfg.EmbeddingProvider {
	case config.EmbedGemini:
		emb = googlegenai.GoogleAIEmbedder(g, cfg.GeminiEmbeddingModel)
	case config.EmbedNomic:
		emb = ollama.Embedder(g, cfg.OllamaHost)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.EmbeddingProvider)
	}

	if emb == nil {
		return nil, fmt.Errorf("%w: provider %q, model %q",
			ErrEmbedderNotFound, cfg.EmbeddingProvider, cfg.EmbeddingModelName())
	}

	return &Generator{
		embedder: emb,
		model:    cfg.EmbeddingModelName(),
		logger:   logger.With("component", "embed", "model", cfg.EmbeddingModelName()),
	}, nil
}

// Embed generates one embedding per input text, in input order.
func (e *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts with %s: %w", len(texts), e.model, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder %s returned %d embeddings for %d texts",
			e.model, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("embedder %s returned an empty vector for text %d", e.model, i)
		}
		vectors[i] = emb.Embedding
	}

	e.logger.Debug("embeddings generated", "count", len(vectors), "dimension", len(vectors[0]))
	return vectors, nil
}
