package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"siterag/internal/log"
	"siterag/internal/store"
)

// fakeFetcher serves canned sitemap URLs and synthesized page bodies.
type fakeFetcher struct {
	urls       []string
	sitemapErr error
	pageErr    error

	sitemapCalls int
	fetchedURLs  [][]string
}

func (f *fakeFetcher) FetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	f.sitemapCalls++
	return f.urls, f.sitemapErr
}

func (f *fakeFetcher) FetchPages(ctx context.Context, urls []string) ([]Page, error) {
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	batch := make([]string, len(urls))
	copy(batch, urls)
	f.fetchedURLs = append(f.fetchedURLs, batch)

	pages := make([]Page, len(urls))
	for i, u := range urls {
		pages[i] = Page{URL: u, Body: []byte("<html><body><p>content of " + u + "</p></body></html>")}
	}
	return pages, nil
}

// fakeDocStore records stored batches and can fail selected blocks.
type fakeDocStore struct {
	batches   [][]store.Document
	failBatch int // 1-based batch index to fail, 0 = never
}

func (f *fakeDocStore) StoreDocuments(ctx context.Context, docs []store.Document) error {
	f.batches = append(f.batches, docs)
	if f.failBatch == len(f.batches) {
		return errors.New("store unavailable")
	}
	return nil
}

func siteURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://x/topic%d/sub%d/page", i, i)
	}
	return urls
}

func TestRun_Pagination(t *testing.T) {
	fetcher := &fakeFetcher{urls: siteURLs(5)}
	docStore := &fakeDocStore{}
	loader, err := New(Config{SitemapURL: "https://x/sitemap.xml", BlockSize: 2}, fetcher, docStore, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stats, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.TotalURLs != 5 || stats.TotalBlocks != 3 {
		t.Errorf("stats = %+v, want 5 URLs in 3 blocks", stats)
	}
	if stats.StoredDocs != 5 || stats.FailedBlocks != 0 {
		t.Errorf("stats = %+v, want 5 stored, 0 failed", stats)
	}

	wantSizes := []int{2, 2, 1}
	if len(docStore.batches) != len(wantSizes) {
		t.Fatalf("got %d batches, want %d", len(docStore.batches), len(wantSizes))
	}
	for i, want := range wantSizes {
		if len(docStore.batches[i]) != want {
			t.Errorf("batch %d has %d documents, want %d", i, len(docStore.batches[i]), want)
		}
	}
}

func TestRun_DocumentMetadata(t *testing.T) {
	fetcher := &fakeFetcher{urls: []string{"https://x/awards/excellence/page"}}
	docStore := &fakeDocStore{}
	loader, err := New(Config{SitemapURL: "https://x/sitemap.xml", BlockSize: 10}, fetcher, docStore, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := loader.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(docStore.batches) != 1 || len(docStore.batches[0]) != 1 {
		t.Fatalf("batches = %v", docStore.batches)
	}
	doc := docStore.batches[0][0]
	if doc.Metadata["source"] != "https://x/awards/excellence/page" {
		t.Errorf("source = %q", doc.Metadata["source"])
	}
	if doc.Metadata["topic"] != "awards" || doc.Metadata["subtopic"] != "excellence" {
		t.Errorf("topic/subtopic = %q/%q", doc.Metadata["topic"], doc.Metadata["subtopic"])
	}
	if doc.Content == "" {
		t.Error("document content is empty")
	}
}

func TestRun_FilterDrivesCountAndBlocks(t *testing.T) {
	fetcher := &fakeFetcher{urls: []string{
		"https://x/content/a/page",
		"https://x/news/b/page",
		"https://x/content/c/page",
		"https://x/about",
	}}
	docStore := &fakeDocStore{}
	loader, err := New(Config{
		SitemapURL:    "https://x/sitemap.xml",
		BlockSize:     2,
		FilterPattern: "content",
	}, fetcher, docStore, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stats, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The same filtered list drives both the block count and the fetches.
	if stats.TotalURLs != 2 || stats.TotalBlocks != 1 {
		t.Errorf("stats = %+v, want 2 URLs in 1 block", stats)
	}
	if len(fetcher.fetchedURLs) != 1 {
		t.Fatalf("fetched batches = %v", fetcher.fetchedURLs)
	}
	for _, u := range fetcher.fetchedURLs[0] {
		if u == "https://x/news/b/page" || u == "https://x/about" {
			t.Errorf("filtered URL was fetched: %s", u)
		}
	}
}

func TestRun_BlockFailureDoesNotAbort(t *testing.T) {
	fetcher := &fakeFetcher{urls: siteURLs(6)}
	docStore := &fakeDocStore{failBatch: 2}
	loader, err := New(Config{SitemapURL: "https://x/sitemap.xml", BlockSize: 2}, fetcher, docStore, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stats, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.FailedBlocks != 1 {
		t.Errorf("FailedBlocks = %d, want 1", stats.FailedBlocks)
	}
	// Blocks 1 and 3 stored, block 2 lost. At-least-once, not atomic.
	if stats.StoredDocs != 4 {
		t.Errorf("StoredDocs = %d, want 4", stats.StoredDocs)
	}
	if len(docStore.batches) != 3 {
		t.Errorf("store called %d times, want 3", len(docStore.batches))
	}
}

func TestRun_SitemapFailure(t *testing.T) {
	fetcher := &fakeFetcher{sitemapErr: errors.New("connection refused")}
	loader, err := New(Config{SitemapURL: "https://x/sitemap.xml", BlockSize: 2}, fetcher, &fakeDocStore{}, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := loader.Run(context.Background()); err == nil {
		t.Fatal("expected error when sitemap fetch fails")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	fetcher := &fakeFetcher{}

	if _, err := New(Config{SitemapURL: "https://x/sitemap.xml", BlockSize: 2, FilterPattern: "[bad"}, fetcher, &fakeDocStore{}, log.NewNop()); err == nil {
		t.Error("expected error for invalid filter pattern")
	}
	if _, err := New(Config{SitemapURL: "https://x/sitemap.xml", BlockSize: 0}, fetcher, &fakeDocStore{}, log.NewNop()); err == nil {
		t.Error("expected error for zero block size")
	}
}

func TestBasePath(t *testing.T) {
	if got := BasePath("https://x/sitemap.xml"); got != "https://x/" {
		t.Errorf("BasePath = %q", got)
	}
	if got := BasePath("https://x/sub/sitemap.xml"); got != "https://x/sub/" {
		t.Errorf("BasePath = %q", got)
	}
}

func TestTopicFromURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		wantTopic    string
		wantSubtopic string
	}{
		{"topic and subtopic", "https://x/awards/excellence/page", "awards", "excellence"},
		{"topic only", "https://x/about", "about", ""},
		{"base itself", "https://x/", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, subtopic := TopicFromURL(tt.url, "https://x/")
			if topic != tt.wantTopic || subtopic != tt.wantSubtopic {
				t.Errorf("TopicFromURL(%q) = %q/%q, want %q/%q",
					tt.url, topic, subtopic, tt.wantTopic, tt.wantSubtopic)
			}
		})
	}
}

func TestCleanHTML(t *testing.T) {
	body := []byte(`<html>
		<head><title>t</title><style>body { color: red }</style></head>
		<body>
			<nav>Navigation links</nav>
			<header>Site header</header>
			<main>
				<h1>Awards</h1>
				<p>The   Acquisition
				Excellence Award recognizes    top performers.</p>
			</main>
			<script>console.log("hi")</script>
			<footer>Copyright</footer>
		</body>
	</html>`)

	got, err := CleanHTML(body)
	if err != nil {
		t.Fatalf("CleanHTML: %v", err)
	}

	want := "Awards The Acquisition Excellence Award recognizes top performers."
	if got != want {
		t.Errorf("CleanHTML = %q, want %q", got, want)
	}
}

func TestCleanHTML_Fragment(t *testing.T) {
	got, err := CleanHTML([]byte(`<p>just a fragment</p>`))
	if err != nil {
		t.Fatalf("CleanHTML: %v", err)
	}
	if got != "just a fragment" {
		t.Errorf("CleanHTML = %q", got)
	}
}
