package delivery

import (
	"context"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
	"github.com/lysyi3m/ai-newsletter/app/plunk"
)

type PlunkClient interface {
	SendEmail(ctx context.Context, req plunk.SendRequest) (*plunk.SendResponse, error)
	CreateCampaign(ctx context.Context, req plunk.CreateCampaignRequest) (*plunk.Campaign, error)
	SendCampaign(ctx context.Context, campaignID string) error
}

type PlunkGateway struct {
	client PlunkClient
}

func NewPlunkGateway(client PlunkClient) *PlunkGateway {
	return &PlunkGateway{client: client}
}

func (g *PlunkGateway) Name() string { return "plunk" }

func (g *PlunkGateway) SendSingle(ctx context.Context, doc newsletter.Document, recipient string) (string, error) {
	resp, err := g.client.SendEmail(ctx, plunk.SendRequest{
		To:      recipient,
		Subject: doc.Subject,
		Body:    doc.HTML,
	})
	if err != nil {
		return "", err
	}
	return resp.ReferenceID(), nil
}

func (g *PlunkGateway) CreateCampaign(ctx context.Context, name string, doc newsletter.Document) (string, error) {
	campaign, err := g.client.CreateCampaign(ctx, plunk.CreateCampaignRequest{
		Name:    name,
		Subject: doc.Subject,
		Body:    doc.HTML,
		Style:   "PLUNK",
	})
	if err != nil {
		return "", err
	}
	return campaign.ID, nil
}

func (g *PlunkGateway) SendCampaign(ctx context.Context, campaignID string) error {
	return g.client.SendCampaign(ctx, campaignID)
}

func (g *PlunkGateway) UnsubscribePlaceholder() string {
	return newsletter.DefaultUnsubscribePlaceholder
}
