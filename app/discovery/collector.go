package discovery

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/ai-newsletter/app/feed"
)

// Candidate is a news item found in a source that matched at least one
// discovery query.
type Candidate struct {
	Title       string
	URL         string
	Source      string
	Snippet     string
	PublishedAt time.Time
	Score       int
}

type SourceRegistry interface {
	Enabled() []*feed.Source
}

type FeedFetcher interface {
	FetchFeed(ctx context.Context, source *feed.Source) ([]byte, error)
}

// Collector searches the configured sources for the discovery queries.
type Collector struct {
	registry    SourceRegistry
	fetcher     FeedFetcher
	parser      *feed.Parser
	filterer    *feed.Filterer
	concurrency int
}

func NewCollector(registry SourceRegistry, fetcher FeedFetcher, parser *feed.Parser, filterer *feed.Filterer, concurrency int) *Collector {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Collector{
		registry:    registry,
		fetcher:     fetcher,
		parser:      parser,
		filterer:    filterer,
		concurrency: concurrency,
	}
}

// Collect fetches every enabled source in parallel and returns the items
// matching any query, best matches first. A failing source is skipped;
// the call fails only when every source fails.
func (c *Collector) Collect(ctx context.Context, queries []string) ([]Candidate, error) {
	sources := c.registry.Enabled()
	if len(sources) == 0 {
		return nil, nil
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
		failures   int
		lastErr    error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, source := range sources {
		g.Go(func() error {
			found, err := c.searchSource(gctx, source, queries)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				lastErr = err
				slog.Warn("Source search failed", "source", source.Name, "error", err)
				return nil
			}
			candidates = append(candidates, found...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "source search interrupted")
	}
	if failures == len(sources) {
		return nil, errors.Wrapf(lastErr, "all %d sources failed", failures)
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		if n := cmp.Compare(b.Score, a.Score); n != 0 {
			return n
		}
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	return candidates, nil
}

func (c *Collector) searchSource(ctx context.Context, source *feed.Source, queries []string) ([]Candidate, error) {
	start := time.Now()

	data, err := c.fetcher.FetchFeed(ctx, source)
	if err != nil {
		return nil, err
	}

	_, items, err := c.parser.Run(data, source.DisplayName())
	if err != nil {
		return nil, err
	}

	var found []Candidate
	for _, item := range c.filterer.Run(items, source) {
		if item.IsFiltered {
			continue
		}

		score := 0
		for _, q := range queries {
			score += c.filterer.Relevance(item, q)
		}
		if score == 0 {
			continue
		}

		found = append(found, Candidate{
			Title:       item.Title,
			URL:         item.Link,
			Source:      item.Source,
			Snippet:     feed.Truncate(item.Description, 300),
			PublishedAt: item.PublishedAt,
			Score:       score,
		})
	}

	slog.Debug("Source searched",
		"source", source.Name,
		"duration", time.Since(start),
		"items", len(items),
		"matched", len(found))

	return found, nil
}
