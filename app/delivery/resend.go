package delivery

import (
	"context"
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/resend/resend-go/v2"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

const resendUnsubscribePlaceholder = "{{{RESEND_UNSUBSCRIBE_URL}}}"

// ResendGateway delivers through Resend emails and broadcasts.
type ResendGateway struct {
	client     *resend.Client
	from       string
	audienceID string
}

func NewResendGateway(client *resend.Client, from, audienceID string) *ResendGateway {
	return &ResendGateway{client: client, from: from, audienceID: audienceID}
}

func (g *ResendGateway) Name() string { return "resend" }

func (g *ResendGateway) SendSingle(ctx context.Context, doc newsletter.Document, recipient string) (string, error) {
	sent, err := g.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    g.from,
		To:      []string{recipient},
		Subject: doc.Subject,
		Html:    doc.HTML,
	})
	if err != nil {
		return "", classifyResend(errors.Wrap(err, "resend send failed"))
	}
	return sent.Id, nil
}

func (g *ResendGateway) CreateCampaign(ctx context.Context, name string, doc newsletter.Document) (string, error) {
	if g.audienceID == "" {
		return "", newsletter.ConfigurationErrorf("RESEND_AUDIENCE_ID not set, required for broadcasts")
	}

	created, err := g.client.Broadcasts.CreateWithContext(ctx, &resend.CreateBroadcastRequest{
		AudienceId: g.audienceID,
		From:       g.from,
		Subject:    doc.Subject,
		Html:       doc.HTML,
		Name:       name,
	})
	if err != nil {
		return "", classifyResend(errors.Wrap(err, "resend broadcast create failed"))
	}
	if created.Id == "" {
		return "", errors.Mark(errors.New("resend broadcast created without an id"), newsletter.ErrProvider)
	}
	return created.Id, nil
}

func (g *ResendGateway) SendCampaign(ctx context.Context, campaignID string) error {
	_, err := g.client.Broadcasts.SendWithContext(ctx, &resend.SendBroadcastRequest{BroadcastId: campaignID})
	if err != nil {
		return classifyResend(errors.Wrapf(err, "resend broadcast %s send failed", campaignID))
	}
	return nil
}

func (g *ResendGateway) UnsubscribePlaceholder() string {
	return resendUnsubscribePlaceholder
}

func classifyResend(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return newsletter.MarkNetwork(err)
	}
	return errors.Mark(err, newsletter.ErrProvider)
}
