// Package chat generates responses with an LLM over Genkit.
//
// One Generator serves both providers: the provider-qualified model name
// ("googleai/gemini-2.5-flash", "ollama/llama3.2") selects the backend that
// the active Genkit plugins registered. Conversation persistence is delegated
// to a History implementation; the Generator itself is stateless.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"siterag/internal/log"
	"siterag/internal/prompt"
	"siterag/internal/session"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

const (
	// FallbackResponse is returned when the model produces an empty response.
	FallbackResponse = "I'm sorry, but I couldn't generate a response for this query."

	// refinementTurns is how many recent turns feed the query refinement
	// prompt. Older turns rarely change the meaning of a follow-up.
	refinementTurns = 5

	// generateTimeout bounds a single model call.
	generateTimeout = 60 * time.Second
)

// ErrMissingDependency indicates a required Config field was not set.
var ErrMissingDependency = errors.New("missing dependency")

// History is the conversation store consumed by the Generator.
// session.Store is the production implementation.
type History interface {
	// AppendExchange stores one user/assistant pair atomically.
	AppendExchange(ctx context.Context, sessionID, query, answer string) error

	// Turns returns the full session history, oldest first.
	Turns(ctx context.Context, sessionID string) ([]session.Turn, error)

	// LastN returns the most recent n turns, oldest first.
	LastN(ctx context.Context, sessionID string, n int) ([]session.Turn, error)
}

// Model is the response generation interface consumed by the RAG pipeline.
type Model interface {
	// Generate produces a single-shot structured answer from query and
	// retrieved context, without touching session history.
	Generate(ctx context.Context, query, contextText string) (string, error)

	// GenerateWithHistory produces a conversational answer using the session
	// history and records the exchange on success.
	GenerateWithHistory(ctx context.Context, query, contextText, sessionID string) (string, error)

	// RefineQuery rewrites a follow-up query into a standalone one using
	// recent history. Sessions without history return the query unchanged.
	RefineQuery(ctx context.Context, query, sessionID string) (string, error)
}

// textGenerator abstracts the underlying model call so tests can substitute
// a fake without a Genkit instance.
type textGenerator func(ctx context.Context, messages []*ai.Message) (string, error)

// Config contains the parameters for a Generator.
type Config struct {
	Genkit  *genkit.Genkit
	History History
	Logger  log.Logger

	// ModelName is the provider-qualified model name.
	ModelName   string
	Temperature float32
	MaxTokens   int

	// RateLimiter throttles model calls (nil = default 10 req/s, burst 30).
	RateLimiter *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return fmt.Errorf("%w: genkit instance", ErrMissingDependency)
	}
	if cfg.History == nil {
		return fmt.Errorf("%w: history store", ErrMissingDependency)
	}
	if cfg.ModelName == "" {
		return fmt.Errorf("%w: model name", ErrMissingDependency)
	}
	return nil
}

// Generator implements Model on top of Genkit.
//
// Generator is stateless and safe for concurrent use.
type Generator struct {
	modelName   string
	history     History
	logger      log.Logger
	rateLimiter *rate.Limiter
	generate    textGenerator
}

// New creates a Generator for the configured model.
func New(cfg Config) (*Generator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	g := &Generator{
		modelName:   cfg.ModelName,
		history:     cfg.History,
		logger:      logger.With("component", "chat", "model", cfg.ModelName),
		rateLimiter: rl,
	}
	g.generate = func(ctx context.Context, messages []*ai.Message) (string, error) {
		resp, err := genkit.Generate(ctx, cfg.Genkit,
			ai.WithModelName(cfg.ModelName),
			ai.WithMessages(messages...),
			ai.WithConfig(&ai.GenerationCommonConfig{
				Temperature:     float64(cfg.Temperature),
				MaxOutputTokens: cfg.MaxTokens,
			}),
		)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}

	return g, nil
}

// Generate produces a structured answer from the query and retrieved context.
func (g *Generator) Generate(ctx context.Context, query, contextText string) (string, error) {
	g.logger.Debug("generating response", "query_length", len(query), "context_length", len(contextText))

	text, err := g.call(ctx, []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart(prompt.QA(contextText, query))),
	})
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}

	return orFallback(text), nil
}

// GenerateWithHistory produces a conversational answer over the session
// history and appends the new exchange. Nothing is appended when generation
// fails, so history never records a query without its answer.
func (g *Generator) GenerateWithHistory(ctx context.Context, query, contextText, sessionID string) (string, error) {
	turns, err := g.history.Turns(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("loading history for session %q: %w", sessionID, err)
	}

	messages := make([]*ai.Message, 0, len(turns)+2)
	messages = append(messages, ai.NewSystemMessage(ai.NewTextPart("You are a helpful assistant.")))
	for _, turn := range turns {
		messages = append(messages, turnToMessage(turn))
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(prompt.Select(contextText, query))))

	text, err := g.call(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generating response for session %q: %w", sessionID, err)
	}

	answer := orFallback(text)

	if err := g.history.AppendExchange(ctx, sessionID, query, answer); err != nil {
		// The answer is still valid; losing one history entry is preferable
		// to discarding a successful generation.
		g.logger.Error("failed to record exchange", "session_id", sessionID, "error", err)
	}

	return answer, nil
}

// RefineQuery rewrites a follow-up query into a standalone one. Sessions
// without history skip the model call entirely, and any refinement failure
// degrades to the original query.
func (g *Generator) RefineQuery(ctx context.Context, query, sessionID string) (string, error) {
	turns, err := g.history.LastN(ctx, sessionID, refinementTurns)
	if err != nil {
		g.logger.Warn("loading history for refinement failed, using original query",
			"session_id", sessionID, "error", err)
		return query, nil
	}
	if len(turns) == 0 {
		g.logger.Debug("no history available, using original query", "session_id", sessionID)
		return query, nil
	}

	text, err := g.call(ctx, []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart(prompt.Refinement(session.FormatTurns(turns), query))),
	})
	if err != nil || strings.TrimSpace(text) == "" {
		g.logger.Warn("query refinement failed, using original query",
			"session_id", sessionID, "error", err)
		return query, nil
	}

	refined := strings.TrimSpace(text)
	g.logger.Debug("query refined", "original", query, "refined", refined)
	return refined, nil
}

// call applies rate limiting and the per-call timeout around one model call.
func (g *Generator) call(ctx context.Context, messages []*ai.Message) (string, error) {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	return g.generate(callCtx, messages)
}

func turnToMessage(turn session.Turn) *ai.Message {
	role := ai.RoleUser
	if turn.Role == session.RoleAssistant {
		role = ai.RoleModel
	}
	return &ai.Message{
		Role:    role,
		Content: []*ai.Part{ai.NewTextPart(turn.Content)},
	}
}

func orFallback(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return FallbackResponse
	}
	return trimmed
}
