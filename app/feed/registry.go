package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxItems = 30
	defaultTimeout  = 20
	defaultMaxAge   = 48
)

// Registry holds the news sources discovery searches, loaded from a
// directory of YAML files. When the directory is absent the built-in
// sources are used.
type Registry struct {
	sourcesDir string
	cache      map[string]*Source
	mu         sync.RWMutex
}

func NewRegistry(sourcesDir string) *Registry {
	return &Registry{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Source),
	}
}

// Run (re)loads every source file. The new set replaces the old one only
// after all files load, so a bad file leaves the previous set in place.
func (r *Registry) Run() error {
	if r.sourcesDir == "" {
		r.swap(builtinSet())
		return nil
	}

	if _, err := os.Stat(r.sourcesDir); os.IsNotExist(err) {
		slog.Warn("Sources directory not found, using built-in sources", "dir", r.sourcesDir)
		r.swap(builtinSet())
		return nil
	}

	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(r.sourcesDir, pattern))
		if err != nil {
			return fmt.Errorf("failed to find source files: %w", err)
		}
		files = append(files, matches...)
	}

	sources := make(map[string]*Source, len(files))
	for _, file := range files {
		source, err := loadFile(file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}
		sources[source.Name] = source

		slog.Debug("Source loaded", "source", source.Name, "enabled", source.Settings.Enabled, "url", source.URL)
	}

	if len(sources) == 0 {
		slog.Warn("No source files found, using built-in sources", "dir", r.sourcesDir)
		sources = builtinSet()
	}

	r.swap(sources)
	return nil
}

func (r *Registry) swap(sources map[string]*Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = sources
}

func loadFile(file string) (*Source, error) {
	source, err := parseSource(file)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(file)
	source.Name = strings.TrimSuffix(base, filepath.Ext(base))

	if err := validateSource(source); err != nil {
		return nil, fmt.Errorf("invalid source %s: %w", file, err)
	}

	return source, nil
}

func (r *Registry) Get(name string) (*Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	source, ok := r.cache[name]
	if !ok {
		return nil, fmt.Errorf("source with name '%s' not found", name)
	}
	return source, nil
}

// Enabled returns enabled sources ordered by name.
func (r *Registry) Enabled() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]*Source, 0, len(r.cache))
	for _, s := range r.cache {
		if s.Settings.Enabled {
			sources = append(sources, s)
		}
	}
	slices.SortFunc(sources, func(a, b *Source) int {
		return strings.Compare(a.Name, b.Name)
	})
	return sources
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func builtinSet() map[string]*Source {
	sources := make(map[string]*Source)
	for _, s := range BuiltinSources() {
		sources[s.Name] = s
	}
	return sources
}

func parseSource(file string) (*Source, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	source := Source{Settings: SourceSettings{Enabled: true}}
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&source)
	return &source, nil
}

func applyDefaults(s *Source) {
	if s.Settings.MaxItems == 0 {
		s.Settings.MaxItems = defaultMaxItems
	}
	if s.Settings.Timeout == 0 {
		s.Settings.Timeout = defaultTimeout
	}
}

func validateSource(s *Source) error {
	if s == nil {
		return fmt.Errorf("source is nil")
	}

	if s.URL == "" {
		return fmt.Errorf("source URL is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source URL must be an absolute http(s) URL: %s", s.URL)
	}

	nonNegativeFields := map[string]int{
		"max items": s.Settings.MaxItems,
		"max age":   s.Settings.MaxAge,
		"timeout":   s.Settings.Timeout,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	for i, filter := range s.Filters {
		if !validFilterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}

// BuiltinSources are AI-focused publications searched when no sources
// directory is configured.
func BuiltinSources() []*Source {
	builtin := []*Source{
		{Name: "techcrunch-ai", Title: "TechCrunch", URL: "https://techcrunch.com/category/artificial-intelligence/feed/"},
		{Name: "the-verge-ai", Title: "The Verge", URL: "https://www.theverge.com/rss/ai-artificial-intelligence/index.xml"},
		{Name: "venturebeat-ai", Title: "VentureBeat", URL: "https://venturebeat.com/category/ai/feed/"},
		{Name: "mit-technology-review", Title: "MIT Technology Review", URL: "https://www.technologyreview.com/topic/artificial-intelligence/feed"},
		{Name: "ars-technica", Title: "Ars Technica", URL: "https://feeds.arstechnica.com/arstechnica/technology-lab"},
		{Name: "openai-news", Title: "OpenAI", URL: "https://openai.com/news/rss.xml"},
		{Name: "google-ai-blog", Title: "Google AI Blog", URL: "https://blog.google/technology/ai/rss/"},
		{Name: "hugging-face-blog", Title: "Hugging Face", URL: "https://huggingface.co/blog/feed.xml"},
	}
	for _, s := range builtin {
		s.Settings = SourceSettings{Enabled: true, MaxAge: defaultMaxAge}
		applyDefaults(s)
	}
	return builtin
}
