// Package delivery renders the curated batch and hands it to the email
// provider, either to one recipient or as a broadcast campaign.
package delivery

import (
	"context"
	"fmt"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

// Gateway is an email provider able to send one message and to run a
// two-phase broadcast (create a campaign, then send it).
type Gateway interface {
	Name() string
	SendSingle(ctx context.Context, doc newsletter.Document, recipient string) (messageID string, err error)
	CreateCampaign(ctx context.Context, name string, doc newsletter.Document) (campaignID string, err error)
	SendCampaign(ctx context.Context, campaignID string) error
	// UnsubscribePlaceholder is the token the provider substitutes with a
	// per-contact unsubscribe link.
	UnsubscribePlaceholder() string
}

// BroadcastError reports a campaign that was created but not sent.
type BroadcastError struct {
	CampaignID string
	Err        error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast campaign %s was created but not sent: %v", e.CampaignID, e.Err)
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}

// ResolveBroadcast applies mode precedence: an explicit per-run flag wins
// over the process-wide default.
func ResolveBroadcast(flag *bool, processDefault bool) bool {
	if flag != nil {
		return *flag
	}
	return processDefault
}

// ResolveRecipient prefers the per-run recipient over the process default.
func ResolveRecipient(explicit, processDefault string) string {
	if explicit != "" {
		return explicit
	}
	return processDefault
}
