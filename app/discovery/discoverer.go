// Package discovery finds candidate AI news articles and asks the LLM to
// select the 15-20 most relevant ones.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/ai-newsletter/app/llm"
	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

const defaultMaxCandidates = 60

// Completer is the part of the LLM client discovery needs.
type Completer interface {
	CompleteJSON(ctx context.Context, req llm.Request, out any) error
}

type CandidateCollector interface {
	Collect(ctx context.Context, queries []string) ([]Candidate, error)
}

type Config struct {
	Queries       []string // "{date}" expands to today's date
	WebSearch     bool
	MaxCandidates int
}

type Discoverer struct {
	collector CandidateCollector
	llm       Completer
	config    Config
	now       func() time.Time
}

func NewDiscoverer(collector CandidateCollector, completer Completer, config Config) *Discoverer {
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = defaultMaxCandidates
	}
	return &Discoverer{
		collector: collector,
		llm:       completer,
		config:    config,
		now:       time.Now,
	}
}

type discoveryOutput struct {
	Articles []newsletter.DiscoveredItem `json:"articles"`
}

// Run produces the discovered batch. Every failure is attributed to the
// discovery stage.
func (d *Discoverer) Run(ctx context.Context) (newsletter.DiscoveredBatch, error) {
	batch, err := d.discover(ctx)
	if err != nil {
		return nil, newsletter.NewStageError(newsletter.StageDiscovery, err)
	}
	return batch, nil
}

func (d *Discoverer) discover(ctx context.Context) (newsletter.DiscoveredBatch, error) {
	start := time.Now()
	today := d.now().UTC().Format("2006-01-02")

	queries := make([]string, len(d.config.Queries))
	for i, q := range d.config.Queries {
		queries[i] = strings.ReplaceAll(q, "{date}", today)
	}

	var candidates []Candidate
	if d.collector != nil {
		found, err := d.collector.Collect(ctx, queries)
		if err != nil {
			if !d.config.WebSearch {
				return nil, errors.Wrap(err, "failed to search news sources")
			}
			slog.Warn("Source search failed, relying on web search", "error", err)
		}
		candidates = found
	}

	total := len(candidates)
	candidates = Dedupe(candidates)
	if len(candidates) > d.config.MaxCandidates {
		candidates = candidates[:d.config.MaxCandidates]
	}

	slog.Info("Candidates collected",
		"total", total,
		"unique", len(candidates),
		"web_search", d.config.WebSearch)

	if len(candidates) == 0 && !d.config.WebSearch {
		return nil, errors.Mark(errors.New("no candidate articles found in any source"), newsletter.ErrProvider)
	}

	var out discoveryOutput
	err := d.llm.CompleteJSON(ctx, llm.Request{
		SystemPrompt: systemPrompt(d.config.WebSearch),
		UserPrompt:   userPrompt(today, queries, candidates),
		Schema:       discoverySchema,
		WebSearch:    d.config.WebSearch,
	}, &out)
	if err != nil {
		return nil, errors.Wrap(err, "article selection failed")
	}

	batch := newsletter.DiscoveredBatch(out.Articles)
	for i := range batch {
		batch[i].Title = strings.TrimSpace(batch[i].Title)
		batch[i].URL = strings.TrimSpace(batch[i].URL)
	}

	if err := newsletter.ValidateDiscovered(batch); err != nil {
		return nil, err
	}

	slog.Info("Discovery completed", "articles", len(batch), "duration", time.Since(start))
	return batch, nil
}

func userPrompt(today string, queries []string, candidates []Candidate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Today is %s.\n\n", today)

	if len(queries) > 0 {
		b.WriteString("Search focus:\n")
		for _, q := range queries {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}

	if len(candidates) == 0 {
		fmt.Fprintf(&b, "No pre-collected candidates are available. Use web search to find %d-%d articles.\n",
			newsletter.MinDiscovered, newsletter.MaxDiscovered)
		return b.String()
	}

	fmt.Fprintf(&b, "Candidate articles (%d):\n\n", len(candidates))
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   Source: %s\n", i+1, c.Title, c.URL, c.Source)
		if !c.PublishedAt.IsZero() {
			fmt.Fprintf(&b, "   Published: %s\n", c.PublishedAt.UTC().Format(time.RFC3339))
		}
		if c.Snippet != "" {
			fmt.Fprintf(&b, "   Snippet: %s\n", c.Snippet)
		}
	}

	fmt.Fprintf(&b, "\nSelect %d-%d unique, high-quality articles. Copy each URL exactly as listed.\n",
		newsletter.MinDiscovered, newsletter.MaxDiscovered)
	return b.String()
}
