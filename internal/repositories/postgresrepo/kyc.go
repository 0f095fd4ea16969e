package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/jmoiron/sqlx"
)

type KYCRepository struct {
	db *sqlx.DB
}

var _ ports.KYCRepository = (*KYCRepository)(nil)

func NewKYCRepository(db *sqlx.DB) *KYCRepository {
	return &KYCRepository{db: db}
}

func (r *KYCRepository) GetKYC(ctx context.Context, userID string) (*models.KYCRecord, error) {
	var record models.KYCRecord
	query := `
		SELECT user_id, status, bank_details_verified, minimum_withdrawal, maximum_daily_withdrawal
		FROM kyc_records WHERE user_id = $1
	`
	if err := r.db.GetContext(ctx, &record, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound("kyc record not found for user %s", userID)
		}
		return nil, fmt.Errorf("failed to get kyc record: %w", err)
	}
	return &record, nil
}
