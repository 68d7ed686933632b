package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"siterag/internal/log"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher implements Fetcher with a polite concurrent crawler: bounded
// parallelism, a fixed delay between requests to the same domain and a
// per-request timeout.
type CollyFetcher struct {
	parallelism int
	delay       time.Duration
	timeout     time.Duration
	logger      log.Logger
}

// NewCollyFetcher creates a fetcher with the given politeness settings.
func NewCollyFetcher(parallelism int, delay, timeout time.Duration, logger log.Logger) *CollyFetcher {
	if logger == nil {
		logger = log.NewNop()
	}
	return &CollyFetcher{
		parallelism: parallelism,
		delay:       delay,
		timeout:     timeout,
		logger:      logger.With("component", "fetch"),
	}
}

func (f *CollyFetcher) newCollector() (*colly.Collector, error) {
	c := colly.NewCollector(colly.Async(true))
	c.SetRequestTimeout(f.timeout)

	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.parallelism,
		Delay:       f.delay,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring crawl limits: %w", err)
	}
	return c, nil
}

// FetchSitemap downloads the sitemap and returns all listed page URLs in
// document order.
func (f *CollyFetcher) FetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	c, err := f.newCollector()
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		urls     []string
		fetchErr error
	)

	c.OnXML("//urlset/url/loc", func(e *colly.XMLElement) {
		mu.Lock()
		urls = append(urls, e.Text)
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		fetchErr = err
		mu.Unlock()
	})

	if err := c.Visit(sitemapURL); err != nil {
		return nil, fmt.Errorf("requesting sitemap: %w", err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fmt.Errorf("downloading sitemap: %w", fetchErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.logger.Info("sitemap fetched", "urls", len(urls))
	return urls, nil
}

// FetchPages downloads the given pages concurrently. Individual failures are
// logged and skipped so one dead link cannot abort a whole block.
func (f *CollyFetcher) FetchPages(ctx context.Context, urls []string) ([]Page, error) {
	c, err := f.newCollector()
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		pages []Page
	)

	c.OnResponse(func(r *colly.Response) {
		body := make([]byte, len(r.Body))
		copy(body, r.Body)

		mu.Lock()
		pages = append(pages, Page{URL: r.Request.URL.String(), Body: body})
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		f.logger.Warn("page fetch failed", "url", r.Request.URL.String(), "error", err)
	})

	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.Visit(u); err != nil {
			f.logger.Warn("page request rejected", "url", u, "error", err)
		}
	}
	c.Wait()

	f.logger.Debug("block fetched", "requested", len(urls), "retrieved", len(pages))
	return pages, nil
}
