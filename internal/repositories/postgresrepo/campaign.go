package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/jmoiron/sqlx"
)

const campaignColumns = `
	id, brand_id, title, budget, remaining_budget, payment_type, payment_rate, status,
	start_date, end_date, g_key_cooloff_hours, completed_at, completion_reason,
	final_earnings_transferred, metadata, created_at, updated_at`

const participationColumns = `
	id, campaign_id, streamer_id, status, impressions, clicks, estimated_earnings,
	final_earnings, average_viewers, peak_viewers, last_activity_at, joined_at, left_at,
	completed_at, earnings_transferred_at`

type CampaignRepository struct {
	db *sqlx.DB
}

var _ ports.CampaignRepository = (*CampaignRepository)(nil)

func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) GetCampaign(ctx context.Context, campaignID string) (*models.Campaign, error) {
	var campaign models.Campaign
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	if err := r.db.GetContext(ctx, &campaign, query, campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound("campaign not found: %s", campaignID)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}

func (r *CampaignRepository) ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &campaigns, query, status); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *CampaignRepository) UpdateCampaign(ctx context.Context, campaign *models.Campaign) error {
	query := `
		UPDATE campaigns SET
			budget = :budget,
			remaining_budget = :remaining_budget,
			payment_rate = :payment_rate,
			status = :status,
			end_date = :end_date,
			completed_at = :completed_at,
			completion_reason = :completion_reason,
			final_earnings_transferred = :final_earnings_transferred,
			metadata = :metadata,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, campaign)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.NotFound("campaign not found: %s", campaign.ID)
	}
	return nil
}

func (r *CampaignRepository) ListParticipations(ctx context.Context, campaignID string, statuses ...models.ParticipationStatus) ([]models.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM campaign_participations WHERE campaign_id = ?`
	args := []interface{}{campaignID}
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		query += ` AND status IN (?)`
		args = append(args, values)
	}
	query += ` ORDER BY joined_at ASC`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var participations []models.Participation
	if err := r.db.SelectContext(ctx, &participations, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}
	return participations, nil
}

func (r *CampaignRepository) GetParticipation(ctx context.Context, campaignID, streamerID string) (*models.Participation, error) {
	var participation models.Participation
	query := `SELECT ` + participationColumns + ` FROM campaign_participations WHERE campaign_id = $1 AND streamer_id = $2`
	if err := r.db.GetContext(ctx, &participation, query, campaignID, streamerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound("participation not found: campaign %s streamer %s", campaignID, streamerID)
		}
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}
	return &participation, nil
}

func (r *CampaignRepository) UpdateParticipation(ctx context.Context, participation *models.Participation) error {
	query := `
		UPDATE campaign_participations SET
			status = :status,
			final_earnings = :final_earnings,
			left_at = :left_at,
			completed_at = :completed_at,
			earnings_transferred_at = :earnings_transferred_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, participation)
	if err != nil {
		return fmt.Errorf("failed to update participation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.NotFound("participation not found: %s", participation.ID)
	}
	return nil
}

func (r *CampaignRepository) CompleteActiveParticipations(ctx context.Context, campaignID string, at time.Time) (int64, error) {
	query := `
		UPDATE campaign_participations
		SET status = $1, left_at = $2, completed_at = $2
		WHERE campaign_id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		models.ParticipationStatusCompleted, at, campaignID, models.ParticipationStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to complete participations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
