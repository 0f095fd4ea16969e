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

type UserRepository struct {
	db *sqlx.DB
}

var _ ports.UserDirectory = (*UserRepository)(nil)

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WalletTypeFor maps the user's role to a wallet type. Admins own platform wallets.
func (r *UserRepository) WalletTypeFor(ctx context.Context, userID string) (models.WalletType, error) {
	var role string
	if err := r.db.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", models.NotFound("user not found: %s", userID)
		}
		return "", fmt.Errorf("failed to get user role: %w", err)
	}

	switch role {
	case "brand":
		return models.WalletTypeBrand, nil
	case "streamer":
		return models.WalletTypeStreamer, nil
	case "admin", "platform":
		return models.WalletTypePlatform, nil
	}
	return "", models.BadRequest("user %s has no wallet-bearing role %q", userID, role)
}
