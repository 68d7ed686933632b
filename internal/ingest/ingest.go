// Package ingest crawls a site through its XML sitemap and loads cleaned page
// content into the vector store.
//
// The crawl is paginated: the sitemap's URL list is filtered once, split into
// fixed-size blocks, and each block is fetched, cleaned and stored
// independently. A failure storing block k does not roll back earlier blocks;
// re-running the loader re-ingests everything (the store does not
// deduplicate).
package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"siterag/internal/log"
	"siterag/internal/store"
)

// DocStore is the storage dependency, implemented by store.Store.
type DocStore interface {
	StoreDocuments(ctx context.Context, docs []store.Document) error
}

// Page is one fetched page before cleanup.
type Page struct {
	URL  string
	Body []byte
}

// Fetcher retrieves pages by URL. The colly-backed implementation lives in
// fetch.go; tests substitute a fake.
type Fetcher interface {
	// FetchSitemap returns the URLs listed in the sitemap at the given URL.
	FetchSitemap(ctx context.Context, sitemapURL string) ([]string, error)

	// FetchPages retrieves the given pages. Unreachable pages are skipped,
	// not fatal; the result may be shorter than the input.
	FetchPages(ctx context.Context, urls []string) ([]Page, error)
}

// Config holds loader parameters.
type Config struct {
	SitemapURL string
	BlockSize  int

	// FilterPattern restricts ingestion to URLs containing a match. Empty
	// means no filtering.
	FilterPattern string
}

// Stats summarizes one ingestion run.
type Stats struct {
	TotalURLs    int
	TotalBlocks  int
	StoredDocs   int
	FailedBlocks int
}

// Loader runs the paginated sitemap ingestion.
type Loader struct {
	cfg     Config
	fetcher Fetcher
	store   DocStore
	filter  *regexp.Regexp
	logger  log.Logger
}

// New creates a Loader. The URL filter is compiled exactly once here and the
// compiled predicate drives both the URL-count phase and every block fetch,
// so the two phases can never disagree.
func New(cfg Config, fetcher Fetcher, docStore DocStore, logger log.Logger) (*Loader, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	var filter *regexp.Regexp
	if cfg.FilterPattern != "" {
		var err error
		filter, err = regexp.Compile(cfg.FilterPattern)
		if err != nil {
			return nil, fmt.Errorf("compiling URL filter %q: %w", cfg.FilterPattern, err)
		}
	}

	if cfg.BlockSize < 1 {
		return nil, fmt.Errorf("block size must be positive, got %d", cfg.BlockSize)
	}

	return &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		store:   docStore,
		filter:  filter,
		logger:  logger.With("component", "ingest"),
	}, nil
}

// Run executes the full ingestion. Block-store failures are logged and
// counted but do not abort the run; earlier blocks stay stored.
func (l *Loader) Run(ctx context.Context) (Stats, error) {
	l.logger.Info("processing sitemap", "url", l.cfg.SitemapURL)

	urls, err := l.fetcher.FetchSitemap(ctx, l.cfg.SitemapURL)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching sitemap %s: %w", l.cfg.SitemapURL, err)
	}

	urls = l.filterURLs(urls)
	stats := Stats{
		TotalURLs:   len(urls),
		TotalBlocks: (len(urls) + l.cfg.BlockSize - 1) / l.cfg.BlockSize,
	}
	l.logger.Info("sitemap parsed", "urls", stats.TotalURLs, "blocks", stats.TotalBlocks)

	basePath := BasePath(l.cfg.SitemapURL)

	for block := 0; block < stats.TotalBlocks; block++ {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("ingestion canceled at block %d of %d: %w", block+1, stats.TotalBlocks, err)
		}

		start := block * l.cfg.BlockSize
		end := min(start+l.cfg.BlockSize, len(urls))
		l.logger.Info("processing block", "block", block+1, "of", stats.TotalBlocks, "urls", end-start)

		pages, err := l.fetcher.FetchPages(ctx, urls[start:end])
		if err != nil {
			l.logger.Error("fetching block failed", "block", block+1, "error", err)
			stats.FailedBlocks++
			continue
		}

		docs := make([]store.Document, 0, len(pages))
		for _, page := range pages {
			content, err := CleanHTML(page.Body)
			if err != nil {
				l.logger.Warn("cleaning page failed, skipping", "url", page.URL, "error", err)
				continue
			}

			topic, subtopic := TopicFromURL(page.URL, basePath)
			docs = append(docs, store.Document{
				Content: content,
				Metadata: map[string]string{
					"source":   page.URL,
					"topic":    topic,
					"subtopic": subtopic,
				},
			})
		}

		if len(docs) == 0 {
			l.logger.Warn("block produced no documents", "block", block+1)
			continue
		}

		if err := l.store.StoreDocuments(ctx, docs); err != nil {
			l.logger.Error("storing block failed", "block", block+1, "documents", len(docs), "error", err)
			stats.FailedBlocks++
			continue
		}
		stats.StoredDocs += len(docs)
	}

	l.logger.Info("ingestion finished",
		"stored_documents", stats.StoredDocs,
		"failed_blocks", stats.FailedBlocks)
	return stats, nil
}

// filterURLs applies the compiled filter predicate. The filtered list is the
// single source of truth for both the block count and the block contents.
func (l *Loader) filterURLs(urls []string) []string {
	if l.filter == nil {
		return urls
	}

	filtered := make([]string, 0, len(urls))
	for _, u := range urls {
		if l.filter.MatchString(u) {
			filtered = append(filtered, u)
		}
	}
	l.logger.Info("applied URL filter", "pattern", l.cfg.FilterPattern, "kept", len(filtered), "dropped", len(urls)-len(filtered))
	return filtered
}

// BasePath derives the site base from the sitemap URL by stripping the
// sitemap file name: "https://x/sitemap.xml" becomes "https://x/".
func BasePath(sitemapURL string) string {
	if idx := strings.LastIndex(sitemapURL, "/"); idx >= 0 {
		return sitemapURL[:idx+1]
	}
	return sitemapURL
}

// TopicFromURL derives topic and subtopic from the first two path segments of
// a page URL relative to the site base. Absent segments are empty strings.
func TopicFromURL(pageURL, basePath string) (topic, subtopic string) {
	rel := strings.TrimPrefix(pageURL, basePath)
	parts := strings.Split(rel, "/")
	if len(parts) > 0 {
		topic = parts[0]
	}
	if len(parts) > 1 {
		subtopic = parts[1]
	}
	return topic, subtopic
}
