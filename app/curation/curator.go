// Package curation reads the discovered articles and asks the LLM to
// pick and summarize the ten most important stories.
package curation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/ai-newsletter/app/feed"
	"github.com/lysyi3m/ai-newsletter/app/llm"
	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

const (
	defaultExcerptLength = 1500
	defaultReadTimeout   = 15 * time.Second
	defaultConcurrency   = 4
)

type Completer interface {
	CompleteJSON(ctx context.Context, req llm.Request, out any) error
}

type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string, timeout time.Duration) ([]byte, error)
}

type Extractor interface {
	Run(data []byte, pageURL string) (*feed.Article, error)
}

type Config struct {
	ReadArticles  bool
	ExcerptLength int
	ReadTimeout   time.Duration
	Concurrency   int
}

type Curator struct {
	llm       Completer
	fetcher   PageFetcher
	extractor Extractor
	config    Config
}

// NewCurator builds a curator. When fetcher or extractor is nil the
// articles are curated from their snippets only.
func NewCurator(completer Completer, fetcher PageFetcher, extractor Extractor, config Config) *Curator {
	if config.ExcerptLength <= 0 {
		config.ExcerptLength = defaultExcerptLength
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaultReadTimeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaultConcurrency
	}
	return &Curator{
		llm:       completer,
		fetcher:   fetcher,
		extractor: extractor,
		config:    config,
	}
}

type curationOutput struct {
	CuratedArticles []newsletter.CuratedItem `json:"curatedArticles"`
}

// Run curates the whole discovered batch. Every failure is attributed to
// the curation stage.
func (c *Curator) Run(ctx context.Context, batch newsletter.DiscoveredBatch) (newsletter.CuratedBatch, error) {
	curated, err := c.curate(ctx, batch)
	if err != nil {
		return nil, newsletter.NewStageError(newsletter.StageCuration, err)
	}
	return curated, nil
}

func (c *Curator) curate(ctx context.Context, batch newsletter.DiscoveredBatch) (newsletter.CuratedBatch, error) {
	start := time.Now()

	var pages []page
	if c.config.ReadArticles && c.fetcher != nil && c.extractor != nil {
		pages = c.readArticles(ctx, batch)
	}

	var out curationOutput
	err := c.llm.CompleteJSON(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt(batch, pages),
		Schema:       curationSchema,
	}, &out)
	if err != nil {
		return nil, errors.Wrap(err, "article curation failed")
	}

	curated := newsletter.CuratedBatch(out.CuratedArticles)
	for i := range curated {
		curated[i].Headline = strings.TrimSpace(curated[i].Headline)
		curated[i].Summary = strings.TrimSpace(curated[i].Summary)
		curated[i].URL = strings.TrimSpace(curated[i].URL)
	}

	if err := newsletter.ValidateCurated(curated); err != nil {
		return nil, err
	}

	slog.Info("Curation completed", "articles", len(curated), "duration", time.Since(start))
	return curated, nil
}

// page is what was read from one article. Both fields are empty when
// the page could not be read.
type page struct {
	lead string
	text string
}

// readArticles reads every item's page. Failures never abort curation.
func (c *Curator) readArticles(ctx context.Context, batch newsletter.DiscoveredBatch) []page {
	pages := make([]page, len(batch))

	var (
		mu   sync.Mutex
		read int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for i, item := range batch {
		g.Go(func() error {
			data, err := c.fetcher.FetchPage(gctx, item.URL, c.config.ReadTimeout)
			if err != nil {
				slog.Debug("Article fetch failed", "url", item.URL, "error", err)
				return nil
			}

			article, err := c.extractor.Run(data, item.URL)
			if err != nil {
				slog.Debug("Article extraction failed", "url", item.URL, "error", err)
				return nil
			}

			pages[i] = page{
				lead: strings.TrimSpace(article.Excerpt),
				text: feed.Truncate(article.Text, c.config.ExcerptLength),
			}

			mu.Lock()
			read++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("Articles read", "read", read, "total", len(batch))
	return pages
}

func userPrompt(batch newsletter.DiscoveredBatch, pages []page) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Discovered articles (%d):\n\n", len(batch))
	for i, item := range batch {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n", i+1, item.Title, item.URL)
		if item.Source != "" {
			fmt.Fprintf(&b, "   Source: %s\n", item.Source)
		}
		var p page
		if i < len(pages) {
			p = pages[i]
		}
		// A page lead stands in for a missing search snippet.
		switch {
		case item.Snippet != "":
			fmt.Fprintf(&b, "   Snippet: %s\n", item.Snippet)
		case p.lead != "":
			fmt.Fprintf(&b, "   Snippet: %s\n", p.lead)
		}
		if p.text != "" {
			fmt.Fprintf(&b, "   Article text: %s\n", p.text)
		}
	}

	fmt.Fprintf(&b, "\nSelect exactly %d articles. Use each article's URL exactly as listed.\n", newsletter.CuratedSize)
	return b.String()
}
