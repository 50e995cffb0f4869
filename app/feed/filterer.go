package feed

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

var validFilterFields = map[string]bool{
	"title":       true,
	"description": true,
	"content":     true,
	"authors":     true,
	"link":        true,
	"categories":  true,
}

type Filterer struct {
	now func() time.Time
}

func NewFilterer() *Filterer {
	return &Filterer{now: time.Now}
}

// Run marks items excluded by the source's filters or older than its
// max age, and caps the result at the source's max items. Items keep
// feed order.
func (f *Filterer) Run(items []Item, source *Source) []Item {
	var cutoff time.Time
	if source.Settings.MaxAge > 0 {
		cutoff = f.now().Add(-time.Duration(source.Settings.MaxAge) * time.Hour)
	}

	filtered := make([]Item, 0, len(items))
	for _, item := range items {
		if source.Settings.MaxItems > 0 && len(filtered) >= source.Settings.MaxItems {
			break
		}
		if !cutoff.IsZero() && !item.PublishedAt.IsZero() && item.PublishedAt.Before(cutoff) {
			item.IsFiltered = true
			item.FilterReason = fmt.Sprintf("Older than %dh", source.Settings.MaxAge)
		} else {
			item.IsFiltered, item.FilterReason = f.applyFilters(item, source.Filters)
		}
		filtered = append(filtered, item)
	}

	return filtered
}

func (f *Filterer) applyFilters(item Item, filters []SourceFilter) (bool, string) {
	for _, filter := range filters {
		value := getFieldValue(item, filter.Field)

		for _, exclude := range filter.Excludes {
			if containsFold(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if containsFold(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

// Relevance counts how many query terms appear in the item's title,
// description or categories.
func (f *Filterer) Relevance(item Item, query string) int {
	haystack := strings.Join([]string{item.Title, item.Description, strings.Join(item.Categories, " ")}, " ")
	words := make(map[string]bool)
	for _, w := range QueryTerms(haystack) {
		words[w] = true
	}

	score := 0
	for _, term := range QueryTerms(query) {
		// short terms such as "ai" must match whole words
		if words[term] || (len(term) > 3 && containsFold(haystack, term)) {
			score++
		}
	}
	return score
}

// QueryTerms splits a search query into lower-cased keywords, dropping
// short words.
func QueryTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 || stopWords[w] {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "of": true,
	"in": true, "on": true, "to": true, "a": true, "an": true,
	"latest": true, "news": true, "new": true,
}

func containsFold(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func getFieldValue(item Item, field string) string {
	switch field {
	case "title":
		return item.Title
	case "description":
		return item.Description
	case "content":
		return item.Content
	case "authors":
		return strings.Join(item.Authors, " ")
	case "link":
		return item.Link
	case "categories":
		return strings.Join(item.Categories, " ")
	default:
		return ""
	}
}
