package database

import "time"

const (
	CampaignCreated = "created"
	CampaignSent    = "sent"
)

// Campaign is a ledger row for a provider broadcast.
type Campaign struct {
	Provider       string     `json:"provider"`
	CampaignID     string     `json:"campaignId"`
	NewsletterDate string     `json:"newsletterDate"`
	Status         string     `json:"status"`
	ContentHash    string     `json:"contentHash"`
	CreatedAt      time.Time  `json:"createdAt"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
