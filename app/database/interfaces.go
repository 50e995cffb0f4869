package database

import (
	"context"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

type RunRepositoryInterface interface {
	CreateRun(ctx context.Context, run newsletter.Run) error
	UpdateRunState(ctx context.Context, id, state string) error
	FinishRun(ctx context.Context, run newsletter.Run) error
	GetRun(ctx context.Context, id string) (*newsletter.Run, error)
	RecentRuns(ctx context.Context, limit int) ([]newsletter.Run, error)
}

type CampaignRepositoryInterface interface {
	PendingCampaign(ctx context.Context, provider, date, contentHash string) (string, bool, error)
	SaveCampaign(ctx context.Context, provider, campaignID, date, contentHash string) error
	MarkCampaignSent(ctx context.Context, provider, campaignID string) error
	ListCampaigns(ctx context.Context, limit int) ([]Campaign, error)
}
