// Package rag implements the retrieval-and-answer pipeline.
//
// The pipeline is a stateless orchestrator: retrieve similar documents,
// filter them by relevance, assemble grounding context and dispatch to the
// chat model. All persistent state lives behind the injected store and
// history dependencies, so one Pipeline instance serves any number of
// concurrent sessions.
//
// Failures degrade instead of propagating. The consuming surface is an
// interactive process that must render something for every request, so every
// public operation returns a value.
package rag

import (
	"context"
	"strings"

	"siterag/internal/chat"
	"siterag/internal/log"
	"siterag/internal/store"
)

// Answer modes. Any value other than ModeChat behaves as ModeSearch.
const (
	ModeChat   = "chat"
	ModeSearch = "search"
)

// User-facing sentinel messages.
const (
	// EmptyQueryMessage is returned for blank queries, before any store
	// access.
	EmptyQueryMessage = "Empty query provided for semantic search."

	// NoResultsMessage is returned when retrieval finds nothing. This is a
	// normal outcome, not an error.
	NoResultsMessage = "I'm sorry, but I couldn't generate a response for this query."

	// referenceDefaultTitle and referenceDefaultURL fill references whose
	// documents lack the corresponding metadata.
	referenceDefaultTitle = "Unknown Title"
	referenceDefaultURL   = "#"

	// shortContentTokens is the keyword-search content preview length in
	// whitespace-delimited tokens.
	shortContentTokens = 100
)

// Searcher is the retrieval dependency, implemented by store.Store.
type Searcher interface {
	QuerySimilar(ctx context.Context, query string, opts ...store.SearchOption) []store.Result
	Lookup(ctx context.Context, filter map[string][]string, contains string, limit int) []store.Document
}

// Reference is a presentation-facing projection of a retrieved document.
// Score is nil when the backend did not attach a distance.
type Reference struct {
	Title string
	URL   string
	Score *float64
}

// Answer is the result of one pipeline invocation. References list every
// retrieved document, including those judged too weak to ground the response.
type Answer struct {
	Response   string
	References []Reference
}

// KeywordResult is one keyword-search hit with a truncated content preview.
type KeywordResult struct {
	Title        string
	URL          string
	ShortContent string
}

// Pipeline orchestrates retrieval and generation.
type Pipeline struct {
	store     Searcher
	model     chat.Model
	topK      int
	threshold float64
	logger    log.Logger
}

// New creates a Pipeline. Threshold is a distance bound: results scoring at
// or below it contribute to grounding context.
func New(searcher Searcher, model chat.Model, topK int, threshold float64, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{
		store:     searcher,
		model:     model,
		topK:      topK,
		threshold: threshold,
		logger:    logger.With("component", "rag"),
	}
}

// Ask answers a query through retrieval-augmented generation.
//
// The relevance filter gates what the model may use, not what the user sees:
// every retrieved document appears in References so the user can judge
// relevance themselves even when the pipeline declined to use a result.
func (p *Pipeline) Ask(ctx context.Context, query, mode string, filter map[string]string, sessionID string) Answer {
	if strings.TrimSpace(query) == "" {
		p.logger.Warn("empty query provided")
		return Answer{Response: EmptyQueryMessage}
	}

	opts := []store.SearchOption{store.WithTopK(p.topK)}
	for key, value := range filter {
		opts = append(opts, store.WithFilter(key, value))
	}

	results := p.store.QuerySimilar(ctx, query, opts...)
	p.logger.Info("retrieved documents", "count", len(results), "query_length", len(query))

	if len(results) == 0 {
		return Answer{Response: NoResultsMessage}
	}

	references := make([]Reference, len(results))
	var contextDocs []string
	for i, result := range results {
		references[i] = toReference(result)

		// Inclusive bound: score == threshold still grounds the answer.
		// Results without a score never pass.
		if result.HasScore && result.Score <= p.threshold {
			contextDocs = append(contextDocs, result.Document.Content)
		}
	}

	contextText := strings.Join(contextDocs, "\n\n")
	promptType := "contextual"
	if contextText == "" {
		promptType = "general"
	}
	p.logger.Info("assembled context", "prompt_type", promptType, "grounding_documents", len(contextDocs))

	var (
		response string
		err      error
	)
	if mode == ModeChat {
		response, err = p.model.GenerateWithHistory(ctx, query, contextText, sessionID)
	} else {
		response, err = p.model.Generate(ctx, query, contextText)
	}
	if err != nil {
		p.logger.Error("generation failed", "mode", mode, "error", err)
		return Answer{Response: chat.FallbackResponse, References: references}
	}

	return Answer{Response: response, References: references}
}

// KeywordSearch finds documents containing the given text, optionally
// restricted to a set of topics (matched case-insensitively). No generation
// is involved. A miss yields an empty slice.
func (p *Pipeline) KeywordSearch(ctx context.Context, text string, topics []string, topK int) []KeywordResult {
	var filter map[string][]string
	if len(topics) > 0 {
		lowered := make([]string, len(topics))
		for i, topic := range topics {
			lowered[i] = strings.ToLower(topic)
		}
		filter = map[string][]string{"topic": lowered}
	}

	docs := p.store.Lookup(ctx, filter, text, topK)
	p.logger.Info("keyword search done", "matches", len(docs), "topics", len(topics))

	results := make([]KeywordResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, KeywordResult{
			Title:        metadataOr(doc.Metadata, "subtopic", referenceDefaultTitle),
			URL:          metadataOr(doc.Metadata, "source", referenceDefaultURL),
			ShortContent: truncateTokens(doc.Content, shortContentTokens),
		})
	}
	return results
}

func toReference(result store.Result) Reference {
	ref := Reference{
		Title: metadataOr(result.Document.Metadata, "subtopic", referenceDefaultTitle),
		URL:   metadataOr(result.Document.Metadata, "source", referenceDefaultURL),
	}
	if result.HasScore {
		score := result.Score
		ref.Score = &score
	}
	return ref
}

func metadataOr(metadata map[string]string, key, fallback string) string {
	if value, ok := metadata[key]; ok && value != "" {
		return value
	}
	return fallback
}

// truncateTokens keeps the first n whitespace-delimited tokens, marking
// truncation with an ellipsis.
func truncateTokens(text string, n int) string {
	tokens := strings.Fields(text)
	if len(tokens) <= n {
		return text
	}
	return strings.Join(tokens[:n], " ") + "..."
}
