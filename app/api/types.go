package api

import (
	"context"
	"time"

	"github.com/lysyi3m/ai-newsletter/app/cfg"
	"github.com/lysyi3m/ai-newsletter/app/database"
	"github.com/lysyi3m/ai-newsletter/app/newsletter"
	"github.com/lysyi3m/ai-newsletter/app/pipeline"
	"github.com/lysyi3m/ai-newsletter/app/subscription"
)

type RunnerInterface interface {
	Run(ctx context.Context, trigger pipeline.Trigger, opts pipeline.Options) (newsletter.Result, error)
	Running() (string, bool)
}

var _ RunnerInterface = (*pipeline.Runner)(nil)

type SubscriptionsInterface interface {
	Subscribe(ctx context.Context, email string) (*subscription.SubscribeResult, error)
	Confirm(ctx context.Context, contactID string) subscription.ConfirmOutcome
}

var _ SubscriptionsInterface = (*subscription.Service)(nil)

type Handler struct {
	cfg           *cfg.Cfg
	runner        RunnerInterface
	subscriptions SubscriptionsInterface
	runs          database.RunRepositoryInterface
	campaigns     database.CampaignRepositoryInterface
	now           func() time.Time
}

type subscribeRequest struct {
	Email string `json:"email" form:"email"`
}

type subscribeResponse struct {
	Success           bool             `json:"success"`
	Message           string           `json:"message,omitempty"`
	Error             string           `json:"error,omitempty"`
	AlreadySubscribed bool             `json:"alreadySubscribed,omitempty"`
	Contact           *contactResponse `json:"contact,omitempty"`
}

type contactResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type triggerResponse struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message,omitempty"`
	Output    *newsletter.Receipt `json:"output,omitempty"`
	Error     string              `json:"error,omitempty"`
	Stage     newsletter.Stage    `json:"stage,omitempty"`
	RunID     string              `json:"runId,omitempty"`
	Timestamp string              `json:"timestamp"`
}
