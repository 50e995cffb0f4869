package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
)

// CampaignRepository is the broadcast ledger used to avoid duplicate campaigns.
type CampaignRepository struct {
	db  *DB
	now func() time.Time
}

func NewCampaignRepository(db *DB) *CampaignRepository {
	return &CampaignRepository{db: db, now: time.Now}
}

// PendingCampaign returns the newest created-but-unsent campaign for date
// whose content hash matches.
func (r *CampaignRepository) PendingCampaign(ctx context.Context, provider, date, contentHash string) (string, bool, error) {
	query, args, err := sq.Select("campaign_id").
		From("campaigns").
		Where(sq.Eq{
			"provider":        provider,
			"newsletter_date": date,
			"status":          CampaignCreated,
			"content_hash":    contentHash,
		}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to build campaign query")
	}

	var id string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "failed to query pending campaign")
	}
	return id, true, nil
}

func (r *CampaignRepository) SaveCampaign(ctx context.Context, provider, campaignID, date, contentHash string) error {
	_, err := sq.Insert("campaigns").
		Columns("provider", "campaign_id", "newsletter_date", "status", "content_hash", "created_at").
		Values(provider, campaignID, date, CampaignCreated, contentHash, formatTime(r.now())).
		Suffix("ON CONFLICT (provider, campaign_id) DO UPDATE SET newsletter_date = excluded.newsletter_date, content_hash = excluded.content_hash").
		RunWith(r.db.DB).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to save campaign %s", campaignID)
	}
	return nil
}

func (r *CampaignRepository) MarkCampaignSent(ctx context.Context, provider, campaignID string) error {
	res, err := sq.Update("campaigns").
		Set("status", CampaignSent).
		Set("sent_at", formatTime(r.now())).
		Where(sq.Eq{"provider": provider, "campaign_id": campaignID}).
		RunWith(r.db.DB).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to mark campaign %s sent", campaignID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get affected rows")
	}
	if n == 0 {
		return errors.Newf("campaign %s not found", campaignID)
	}
	return nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, limit int) ([]Campaign, error) {
	if limit <= 0 {
		limit = 20
	}

	query, args, err := sq.Select("provider", "campaign_id", "newsletter_date", "status", "content_hash", "created_at", "sent_at").
		From("campaigns").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build campaigns query")
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query campaigns")
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		var (
			c         Campaign
			createdAt string
			sentAt    sql.NullString
		)
		if err := rows.Scan(&c.Provider, &c.CampaignID, &c.NewsletterDate, &c.Status, &c.ContentHash, &createdAt, &sentAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan campaign")
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, errors.Wrapf(err, "invalid created_at for campaign %s", c.CampaignID)
		}
		if sentAt.Valid {
			t, err := parseTime(sentAt.String)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid sent_at for campaign %s", c.CampaignID)
			}
			c.SentAt = &t
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate campaigns")
	}

	return campaigns, nil
}
