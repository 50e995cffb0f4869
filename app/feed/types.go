package feed

import (
	"time"
)

// Feed processing types

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
}

type Item struct {
	GUID        string
	Source      string
	Title       string
	Link        string
	Description string
	Content     string
	PublishedAt time.Time
	Authors     []string // "email (name)" or "name"
	Categories  []string

	ContentHash  string
	IsFiltered   bool
	FilterReason string
}

// Source configuration types

type Source struct {
	Name     string         // Derived from filename (without extension)
	URL      string         `yaml:"url"`
	Title    string         `yaml:"title"`
	Settings SourceSettings `yaml:"settings"`
	Filters  []SourceFilter `yaml:"filters"`
}

type SourceSettings struct {
	Enabled  bool `yaml:"enabled"`
	MaxItems int  `yaml:"max_items"`
	MaxAge   int  `yaml:"max_age"` // hours, 0 keeps everything
	Timeout  int  `yaml:"timeout"` // seconds
}

type SourceFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// DisplayName is the label used as DiscoveredItem.Source.
func (s *Source) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}
