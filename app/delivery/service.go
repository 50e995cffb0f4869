package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

// CampaignStore is the broadcast ledger. It lets a later run reuse a
// campaign that was created but never sent for the same newsletter date
// and the same rendered content.
type CampaignStore interface {
	PendingCampaign(ctx context.Context, provider, date, contentHash string) (campaignID string, found bool, err error)
	SaveCampaign(ctx context.Context, provider, campaignID, date, contentHash string) error
	MarkCampaignSent(ctx context.Context, provider, campaignID string) error
}

type Config struct {
	DefaultRecipient string
	BroadcastMode    bool
}

type Service struct {
	gateway   Gateway
	renderer  *newsletter.Renderer
	campaigns CampaignStore
	config    Config
}

// NewService builds the delivery stage. campaigns may be nil.
func NewService(gateway Gateway, renderer *newsletter.Renderer, campaigns CampaignStore, config Config) *Service {
	return &Service{
		gateway:   gateway,
		renderer:  renderer,
		campaigns: campaigns,
		config:    config,
	}
}

// Request builds the delivery request for a run, applying mode and
// recipient precedence.
func (s *Service) Request(items newsletter.CuratedBatch, date, recipient string, broadcast *bool) newsletter.DeliveryRequest {
	req := newsletter.DeliveryRequest{
		Items:     slices.Clone(items),
		Broadcast: ResolveBroadcast(broadcast, s.config.BroadcastMode),
		Date:      date,
	}
	if !req.Broadcast {
		req.Recipient = ResolveRecipient(recipient, s.config.DefaultRecipient)
	}
	return req
}

// Run validates and delivers req. No provider call is made for an
// invalid request. Every failure is attributed to the delivery stage.
func (s *Service) Run(ctx context.Context, req newsletter.DeliveryRequest) (*newsletter.Receipt, error) {
	if err := newsletter.ValidateDelivery(req); err != nil {
		return nil, err
	}

	var (
		receipt *newsletter.Receipt
		err     error
	)
	if req.Broadcast {
		receipt, err = s.BroadcastAll(ctx, req)
	} else {
		receipt, err = s.SendSingle(ctx, req)
	}
	if err != nil {
		return nil, newsletter.NewStageError(newsletter.StageDelivery, err)
	}
	return receipt, nil
}

func (s *Service) SendSingle(ctx context.Context, req newsletter.DeliveryRequest) (*newsletter.Receipt, error) {
	doc := s.renderer.Run(req.Items, req.Date, newsletter.RenderOptions{})

	slog.Info("Sending newsletter", "provider", s.gateway.Name(), "to", req.Recipient, "subject", doc.Subject)

	messageID, err := s.gateway.SendSingle(ctx, doc, req.Recipient)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send newsletter to %s", req.Recipient)
	}

	slog.Info("Newsletter sent", "provider", s.gateway.Name(), "to", req.Recipient, "message_id", messageID)

	return &newsletter.Receipt{
		Success:   true,
		MessageID: messageID,
		Recipient: req.Recipient,
		ItemCount: len(req.Items),
		Date:      req.Date,
		Broadcast: false,
	}, nil
}

// BroadcastAll creates (or reuses) the campaign for req.Date and sends it
// to every subscribed contact.
func (s *Service) BroadcastAll(ctx context.Context, req newsletter.DeliveryRequest) (*newsletter.Receipt, error) {
	doc := s.renderer.Run(req.Items, req.Date, newsletter.RenderOptions{
		Broadcast:      true,
		UnsubscribeURL: s.gateway.UnsubscribePlaceholder(),
	})
	provider := s.gateway.Name()
	hash := contentHash(doc)

	campaignID := s.pendingCampaign(ctx, provider, req.Date, hash)
	if campaignID == "" {
		id, err := s.gateway.CreateCampaign(ctx, s.renderer.CampaignName(req.Date), doc)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create broadcast campaign")
		}
		campaignID = id
		slog.Info("Campaign created", "provider", provider, "campaign_id", campaignID, "date", req.Date)

		if s.campaigns != nil {
			if err := s.campaigns.SaveCampaign(ctx, provider, campaignID, req.Date, hash); err != nil {
				slog.Warn("Failed to record campaign", "campaign_id", campaignID, "error", err)
			}
		}
	}

	if err := s.gateway.SendCampaign(ctx, campaignID); err != nil {
		slog.Error("Campaign created but not sent", "provider", provider, "campaign_id", campaignID, "error", err)
		return nil, &BroadcastError{CampaignID: campaignID, Err: err}
	}

	if s.campaigns != nil {
		if err := s.campaigns.MarkCampaignSent(ctx, provider, campaignID); err != nil {
			slog.Warn("Failed to mark campaign sent", "campaign_id", campaignID, "error", err)
		}
	}

	slog.Info("Campaign sent", "provider", provider, "campaign_id", campaignID, "date", req.Date)

	return &newsletter.Receipt{
		Success:    true,
		MessageID:  campaignID,
		CampaignID: campaignID,
		Recipient:  newsletter.BroadcastRecipient,
		ItemCount:  len(req.Items),
		Date:       req.Date,
		Broadcast:  true,
	}, nil
}

// pendingCampaign only matches a campaign holding the same document, so a
// retry never sends an earlier run's items.
func (s *Service) pendingCampaign(ctx context.Context, provider, date, hash string) string {
	if s.campaigns == nil {
		return ""
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id, found, err := s.campaigns.PendingCampaign(lookupCtx, provider, date, hash)
	if err != nil {
		slog.Warn("Campaign ledger lookup failed", "date", date, "error", err)
		return ""
	}
	if found {
		slog.Info("Reusing unsent campaign", "provider", provider, "campaign_id", id, "date", date)
		return id
	}
	return ""
}

func contentHash(doc newsletter.Document) string {
	sum := sha256.Sum256([]byte(doc.Subject + "\n" + doc.HTML))
	return hex.EncodeToString(sum[:])
}
