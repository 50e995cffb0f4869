package delivery

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

// LogGateway logs deliveries instead of sending them. It is meant for
// local development.
type LogGateway struct{}

func NewLogGateway() *LogGateway {
	return &LogGateway{}
}

func (g *LogGateway) Name() string { return "log" }

func (g *LogGateway) SendSingle(_ context.Context, doc newsletter.Document, recipient string) (string, error) {
	slog.Info("Newsletter logged instead of sent", "to", recipient, "subject", doc.Subject, "html_length", len(doc.HTML))
	slog.Debug("Newsletter body", "html", doc.HTML)
	return "log-" + uuid.NewString(), nil
}

func (g *LogGateway) CreateCampaign(_ context.Context, name string, doc newsletter.Document) (string, error) {
	slog.Info("Campaign logged instead of created", "name", name, "subject", doc.Subject, "html_length", len(doc.HTML))
	return "log-campaign-" + uuid.NewString(), nil
}

func (g *LogGateway) SendCampaign(_ context.Context, campaignID string) error {
	slog.Info("Campaign logged instead of sent", "campaign_id", campaignID)
	return nil
}

func (g *LogGateway) UnsubscribePlaceholder() string {
	return newsletter.DefaultUnsubscribePlaceholder
}
