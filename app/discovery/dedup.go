package discovery

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var trackingParams = map[string]bool{
	"ref": true, "fbclid": true, "gclid": true, "mc_cid": true, "mc_eid": true, "cmpid": true,
}

// Dedupe drops candidates that repeat an earlier candidate's canonical
// URL or folded title. The first occurrence wins.
func Dedupe(candidates []Candidate) []Candidate {
	seenURL := make(map[string]bool, len(candidates))
	seenTitle := make(map[string]bool, len(candidates))

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		u := CanonicalURL(c.URL)
		t := FoldTitle(c.Title)
		if seenURL[u] || (t != "" && seenTitle[t]) {
			continue
		}
		seenURL[u] = true
		if t != "" {
			seenTitle[t] = true
		}
		out = append(out, c)
	}
	return out
}

// CanonicalURL lowercases the host, drops "www.", the scheme, the
// fragment, trailing slashes and tracking parameters.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			q.Del(key)
		}
	}

	canonical := host + strings.TrimRight(u.EscapedPath(), "/")
	if enc := q.Encode(); enc != "" {
		canonical += "?" + enc
	}
	return canonical
}

// FoldTitle reduces a headline to case-, accent- and punctuation-
// insensitive words.
func FoldTitle(title string) string {
	// transformers are stateful, so each call builds its own chain
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(folder, title)
	if err != nil {
		s = title
	}
	s = cases.Fold().String(s)

	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}
