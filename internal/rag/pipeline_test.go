package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"siterag/internal/chat"
	"siterag/internal/log"
	"siterag/internal/store"
)

// fakeSearcher implements Searcher with canned results and call recording.
type fakeSearcher struct {
	results []store.Result
	docs    []store.Document

	queryCalls   int
	lastQuery    string
	lookupCalls  int
	lastFilter   map[string][]string
	lastContains string
	lastLimit    int
}

func (f *fakeSearcher) QuerySimilar(ctx context.Context, query string, opts ...store.SearchOption) []store.Result {
	f.queryCalls++
	f.lastQuery = query
	return f.results
}

func (f *fakeSearcher) Lookup(ctx context.Context, filter map[string][]string, contains string, limit int) []store.Document {
	f.lookupCalls++
	f.lastFilter = filter
	f.lastContains = contains
	f.lastLimit = limit
	return f.docs
}

// fakeChatModel implements chat.Model with call recording.
type fakeChatModel struct {
	response string
	err      error

	generateCalls int
	historyCalls  int
	lastContext   string
	lastSessionID string
}

func (f *fakeChatModel) Generate(ctx context.Context, query, contextText string) (string, error) {
	f.generateCalls++
	f.lastContext = contextText
	return f.response, f.err
}

func (f *fakeChatModel) GenerateWithHistory(ctx context.Context, query, contextText, sessionID string) (string, error) {
	f.historyCalls++
	f.lastContext = contextText
	f.lastSessionID = sessionID
	return f.response, f.err
}

func (f *fakeChatModel) RefineQuery(ctx context.Context, query, sessionID string) (string, error) {
	return query, nil
}

func result(content, topic, subtopic, source string, score float64) store.Result {
	return store.Result{
		Document: store.Document{
			Content: content,
			Metadata: map[string]string{
				"topic":    topic,
				"subtopic": subtopic,
				"source":   source,
			},
		},
		Score:    score,
		HasScore: true,
	}
}

func newPipeline(searcher *fakeSearcher, model *fakeChatModel, threshold float64) *Pipeline {
	return New(searcher, model, 5, threshold, log.NewNop())
}

func TestAsk_EmptyQueryNeverReachesStore(t *testing.T) {
	searcher := &fakeSearcher{}
	model := &fakeChatModel{}
	p := newPipeline(searcher, model, 0.5)

	for _, query := range []string{"", "   ", "\t\n"} {
		got := p.Ask(context.Background(), query, ModeSearch, nil, "")
		if got.Response != EmptyQueryMessage {
			t.Errorf("query %q: got %q, want empty-query message", query, got.Response)
		}
	}
	if searcher.queryCalls != 0 {
		t.Errorf("store queried %d times for empty queries", searcher.queryCalls)
	}
	if model.generateCalls+model.historyCalls != 0 {
		t.Errorf("model called for empty queries")
	}
}

func TestAsk_NoResults(t *testing.T) {
	searcher := &fakeSearcher{}
	model := &fakeChatModel{}
	p := newPipeline(searcher, model, 0.5)

	got := p.Ask(context.Background(), "anything", ModeSearch, nil, "")

	if got.Response != NoResultsMessage {
		t.Errorf("got %q, want no-results message", got.Response)
	}
	if len(got.References) != 0 {
		t.Errorf("references = %v, want none", got.References)
	}
	if model.generateCalls+model.historyCalls != 0 {
		t.Errorf("model called despite zero results")
	}
}

func TestAsk_EndToEnd(t *testing.T) {
	searcher := &fakeSearcher{results: []store.Result{
		result("Acquisition Excellence Award recognizes top performers.",
			"awards", "excellence", "https://x/awards/excellence", 0.1),
	}}
	model := &fakeChatModel{response: "The award recognizes top performers."}
	p := newPipeline(searcher, model, 0.5)

	got := p.Ask(context.Background(), "What is the Acquisition Excellence Award?", ModeSearch, nil, "")

	if got.Response != "The award recognizes top performers." {
		t.Errorf("response = %q", got.Response)
	}
	if model.generateCalls != 1 {
		t.Fatalf("generateCalls = %d, want 1", model.generateCalls)
	}
	if model.lastContext != "Acquisition Excellence Award recognizes top performers." {
		t.Errorf("context = %q", model.lastContext)
	}

	if len(got.References) != 1 {
		t.Fatalf("references = %v, want 1", got.References)
	}
	ref := got.References[0]
	if ref.Title != "excellence" || ref.URL != "https://x/awards/excellence" {
		t.Errorf("reference = %+v", ref)
	}
	if ref.Score == nil || *ref.Score != 0.1 {
		t.Errorf("reference score = %v, want 0.1", ref.Score)
	}
}

func TestAsk_ThresholdBoundary(t *testing.T) {
	const threshold = 0.5

	tests := []struct {
		name        string
		score       float64
		wantContext bool
	}{
		{"well below threshold", 0.1, true},
		{"exactly at threshold", threshold, true},
		{"just above threshold", threshold + 0.0001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{results: []store.Result{
				result("doc content", "t", "s", "https://x/t/s", tt.score),
			}}
			model := &fakeChatModel{response: "ok"}
			p := newPipeline(searcher, model, threshold)

			got := p.Ask(context.Background(), "q", ModeSearch, nil, "")

			hasContext := model.lastContext != ""
			if hasContext != tt.wantContext {
				t.Errorf("context present = %v, want %v", hasContext, tt.wantContext)
			}
			// References always include the result, passing or not.
			if len(got.References) != 1 {
				t.Errorf("references = %v, want 1", got.References)
			}
		})
	}
}

func TestAsk_AllAboveThresholdUsesGeneralPath(t *testing.T) {
	searcher := &fakeSearcher{results: []store.Result{
		result("far doc one", "t", "a", "https://x/t/a", 0.9),
		result("far doc two", "t", "b", "https://x/t/b", 1.2),
	}}
	model := &fakeChatModel{response: "general answer"}
	p := newPipeline(searcher, model, 0.5)

	got := p.Ask(context.Background(), "q", ModeSearch, nil, "")

	if model.lastContext != "" {
		t.Errorf("context = %q, want empty (ungrounded mode)", model.lastContext)
	}
	if len(got.References) != 2 {
		t.Errorf("references = %v, want both weak results listed", got.References)
	}
}

func TestAsk_MissingScoreFailsFilter(t *testing.T) {
	searcher := &fakeSearcher{results: []store.Result{
		{
			Document: store.Document{
				Content:  "scoreless doc",
				Metadata: map[string]string{"subtopic": "s", "source": "https://x/s"},
			},
			HasScore: false,
		},
	}}
	model := &fakeChatModel{response: "ok"}
	p := newPipeline(searcher, model, 0.5)

	got := p.Ask(context.Background(), "q", ModeSearch, nil, "")

	if model.lastContext != "" {
		t.Errorf("scoreless document grounded the answer: %q", model.lastContext)
	}
	if len(got.References) != 1 {
		t.Fatalf("references = %v, want 1", got.References)
	}
	if got.References[0].Score != nil {
		t.Errorf("score = %v, want nil for scoreless result", got.References[0].Score)
	}
}

func TestAsk_ContextPreservesRankOrder(t *testing.T) {
	searcher := &fakeSearcher{results: []store.Result{
		result("first doc", "t", "a", "https://x/a", 0.1),
		result("second doc", "t", "b", "https://x/b", 0.2),
		result("third doc", "t", "c", "https://x/c", 0.3),
	}}
	model := &fakeChatModel{response: "ok"}
	p := newPipeline(searcher, model, 0.5)

	p.Ask(context.Background(), "q", ModeSearch, nil, "")

	want := "first doc\n\nsecond doc\n\nthird doc"
	if model.lastContext != want {
		t.Errorf("context = %q, want %q", model.lastContext, want)
	}
}

func TestAsk_ModeDispatch(t *testing.T) {
	results := []store.Result{result("doc", "t", "s", "https://x/s", 0.1)}

	t.Run("chat mode", func(t *testing.T) {
		model := &fakeChatModel{response: "ok"}
		p := newPipeline(&fakeSearcher{results: results}, model, 0.5)

		p.Ask(context.Background(), "q", ModeChat, nil, "sess-42")

		if model.historyCalls != 1 || model.generateCalls != 0 {
			t.Errorf("historyCalls=%d generateCalls=%d, want 1/0", model.historyCalls, model.generateCalls)
		}
		if model.lastSessionID != "sess-42" {
			t.Errorf("sessionID = %q", model.lastSessionID)
		}
	})

	t.Run("search mode", func(t *testing.T) {
		model := &fakeChatModel{response: "ok"}
		p := newPipeline(&fakeSearcher{results: results}, model, 0.5)

		p.Ask(context.Background(), "q", ModeSearch, nil, "")

		if model.generateCalls != 1 || model.historyCalls != 0 {
			t.Errorf("generateCalls=%d historyCalls=%d, want 1/0", model.generateCalls, model.historyCalls)
		}
	})

	t.Run("unknown mode behaves as search", func(t *testing.T) {
		model := &fakeChatModel{response: "ok"}
		p := newPipeline(&fakeSearcher{results: results}, model, 0.5)

		p.Ask(context.Background(), "q", "anything-else", nil, "")

		if model.generateCalls != 1 {
			t.Errorf("generateCalls = %d, want 1", model.generateCalls)
		}
	})
}

func TestAsk_GenerationFailureDegrades(t *testing.T) {
	searcher := &fakeSearcher{results: []store.Result{
		result("doc", "t", "s", "https://x/s", 0.1),
	}}
	model := &fakeChatModel{err: errors.New("backend down")}
	p := newPipeline(searcher, model, 0.5)

	got := p.Ask(context.Background(), "q", ModeSearch, nil, "")

	if got.Response != chat.FallbackResponse {
		t.Errorf("response = %q, want fallback", got.Response)
	}
	if len(got.References) != 1 {
		t.Errorf("references lost on generation failure: %v", got.References)
	}
}

func TestAsk_ReferenceDefaults(t *testing.T) {
	searcher := &fakeSearcher{results: []store.Result{
		{
			Document: store.Document{Content: "bare doc", Metadata: map[string]string{}},
			Score:    0.2,
			HasScore: true,
		},
	}}
	model := &fakeChatModel{response: "ok"}
	p := newPipeline(searcher, model, 0.5)

	got := p.Ask(context.Background(), "q", ModeSearch, nil, "")

	ref := got.References[0]
	if ref.Title != "Unknown Title" || ref.URL != "#" {
		t.Errorf("reference defaults = %+v", ref)
	}
}

func TestKeywordSearch_TopicFilterLowercased(t *testing.T) {
	searcher := &fakeSearcher{docs: []store.Document{
		{
			Content:  "Innovation content here",
			Metadata: map[string]string{"topic": "content", "subtopic": "innovation", "source": "https://x/c/i"},
		},
	}}
	p := newPipeline(searcher, &fakeChatModel{}, 0.5)

	results := p.KeywordSearch(context.Background(), "Innovation", []string{"Content", "NEWS"}, 5)

	if searcher.lookupCalls != 1 {
		t.Fatalf("lookupCalls = %d", searcher.lookupCalls)
	}
	wantTopics := []string{"content", "news"}
	gotTopics := searcher.lastFilter["topic"]
	if len(gotTopics) != 2 || gotTopics[0] != wantTopics[0] || gotTopics[1] != wantTopics[1] {
		t.Errorf("topic filter = %v, want %v", gotTopics, wantTopics)
	}
	if searcher.lastContains != "Innovation" {
		t.Errorf("contains = %q", searcher.lastContains)
	}
	if searcher.lastLimit != 5 {
		t.Errorf("limit = %d", searcher.lastLimit)
	}

	if len(results) != 1 || results[0].Title != "innovation" || results[0].URL != "https://x/c/i" {
		t.Errorf("results = %+v", results)
	}
}

func TestKeywordSearch_NoTopicsMeansNoFilter(t *testing.T) {
	searcher := &fakeSearcher{}
	p := newPipeline(searcher, &fakeChatModel{}, 0.5)

	p.KeywordSearch(context.Background(), "text", nil, 5)

	if searcher.lastFilter != nil {
		t.Errorf("filter = %v, want nil", searcher.lastFilter)
	}
}

func TestKeywordSearch_NoMatchesReturnsEmptySlice(t *testing.T) {
	p := newPipeline(&fakeSearcher{}, &fakeChatModel{}, 0.5)

	results := p.KeywordSearch(context.Background(), "nothing", nil, 5)
	if len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
}

func TestTruncateTokens(t *testing.T) {
	short := "just a few words"
	if got := truncateTokens(short, 100); got != short {
		t.Errorf("short content modified: %q", got)
	}

	var sb strings.Builder
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&sb, "word%d ", i)
	}
	got := truncateTokens(sb.String(), 100)

	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated content missing ellipsis: %q", got)
	}
	if tokens := strings.Fields(got); len(tokens) != 100 {
		t.Errorf("got %d tokens, want 100", len(tokens))
	}
	if !strings.HasPrefix(got, "word0 word1 ") {
		t.Errorf("truncation dropped leading tokens: %q", got)
	}
}
