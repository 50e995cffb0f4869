package newsletter

import (
	"net/mail"
	"net/url"
	"strings"
)

// ValidateDiscovered guards the discovery -> curation hand-off.
func ValidateDiscovered(batch DiscoveredBatch) error {
	if n := len(batch); n < MinDiscovered || n > MaxDiscovered {
		return SchemaViolationf(StageDiscovery, "expected %d-%d articles, got %d", MinDiscovered, MaxDiscovered, n)
	}
	for i, item := range batch {
		if strings.TrimSpace(item.Title) == "" {
			return SchemaViolationf(StageDiscovery, "article %d has an empty title", i+1)
		}
		if !IsValidURL(item.URL) {
			return SchemaViolationf(StageDiscovery, "article %d has an invalid url %q", i+1, item.URL)
		}
	}
	return nil
}

// ValidateCurated guards the curation -> delivery hand-off.
func ValidateCurated(batch CuratedBatch) error {
	if n := len(batch); n != CuratedSize {
		return SchemaViolationf(StageCuration, "expected exactly %d curated articles, got %d", CuratedSize, n)
	}
	for i, item := range batch {
		if strings.TrimSpace(item.Headline) == "" {
			return SchemaViolationf(StageCuration, "curated article %d has an empty headline", i+1)
		}
		if strings.TrimSpace(item.Summary) == "" {
			return SchemaViolationf(StageCuration, "curated article %d has an empty summary", i+1)
		}
		if !IsValidURL(item.URL) {
			return SchemaViolationf(StageCuration, "curated article %d has an invalid url %q", i+1, item.URL)
		}
	}
	return nil
}

// ValidateDelivery checks a delivery request before any provider call.
func ValidateDelivery(req DeliveryRequest) error {
	if err := ValidateCurated(req.Items); err != nil {
		return NewStageError(StageDelivery, err)
	}
	if req.Broadcast {
		return nil
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return NewStageError(StageDelivery,
			ConfigurationErrorf("no recipient email specified and RECIPIENT_EMAIL not set"))
	}
	if !IsValidEmail(req.Recipient) {
		return SchemaViolationf(StageDelivery, "recipient %q is not a valid email address", req.Recipient)
	}
	return nil
}

// IsValidURL accepts absolute http(s) URLs with a host.
func IsValidURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsValidEmail accepts a bare address with a dotted domain.
func IsValidEmail(raw string) bool {
	if strings.ContainsAny(raw, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return false
	}
	at := strings.LastIndex(raw, "@")
	return at > 0 && strings.Contains(raw[at+1:], ".")
}
