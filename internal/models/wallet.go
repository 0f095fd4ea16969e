package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletType string

// Wallet types
const (
	WalletTypeBrand    WalletType = "brand"
	WalletTypeStreamer WalletType = "streamer"
	WalletTypePlatform WalletType = "platform"
)

func (t WalletType) Valid() bool {
	switch t {
	case WalletTypeBrand, WalletTypeStreamer, WalletTypePlatform:
		return true
	}
	return false
}

// Database model
type Wallet struct {
	ID                  string          `db:"id" json:"id"`
	UserID              string          `db:"user_id" json:"userId"`
	Type                WalletType      `db:"wallet_type" json:"walletType"`
	Balance             decimal.Decimal `db:"balance" json:"balance"`
	ReservedBalance     decimal.Decimal `db:"reserved_balance" json:"reservedBalance"`
	WithdrawableBalance decimal.Decimal `db:"withdrawable_balance" json:"withdrawableBalance"`
	TotalEarnings       decimal.Decimal `db:"total_earnings" json:"totalEarnings"`
	TotalSpent          decimal.Decimal `db:"total_spent" json:"totalSpent"`
	Currency            string          `db:"currency" json:"currency"`
	IsActive            bool            `db:"is_active" json:"isActive"`

	IsFrozen     bool       `db:"is_frozen" json:"isFrozen"`
	FrozenAt     *time.Time `db:"frozen_at" json:"frozenAt,omitempty"`
	FrozenBy     *string    `db:"frozen_by" json:"frozenBy,omitempty"`
	FreezeReason *string    `db:"freeze_reason" json:"freezeReason,omitempty"`

	AutoTopupEnabled   bool            `db:"auto_topup_enabled" json:"autoTopupEnabled"`
	AutoTopupThreshold decimal.Decimal `db:"auto_topup_threshold" json:"autoTopupThreshold"`
	AutoTopupAmount    decimal.Decimal `db:"auto_topup_amount" json:"autoTopupAmount"`

	// Version is bumped on every balance write.
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewWallet returns an empty active wallet for the user.
func NewWallet(id, userID string, walletType WalletType, currency string, now time.Time) *Wallet {
	return &Wallet{
		ID:                  id,
		UserID:              userID,
		Type:                walletType,
		Balance:             decimal.Zero,
		ReservedBalance:     decimal.Zero,
		WithdrawableBalance: decimal.Zero,
		TotalEarnings:       decimal.Zero,
		TotalSpent:          decimal.Zero,
		Currency:            currency,
		IsActive:            true,
		AutoTopupThreshold:  decimal.Zero,
		AutoTopupAmount:     decimal.Zero,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// WalletBalance is the read model served from cache or the database.
type WalletBalance struct {
	WalletID            string          `json:"walletId"`
	UserID              string          `json:"userId"`
	Type                WalletType      `json:"walletType"`
	Balance             decimal.Decimal `json:"balance"`
	ReservedBalance     decimal.Decimal `json:"reservedBalance"`
	WithdrawableBalance decimal.Decimal `json:"withdrawableBalance"`
	TotalEarnings       decimal.Decimal `json:"totalEarnings"`
	TotalSpent          decimal.Decimal `json:"totalSpent"`
	Currency            string          `json:"currency"`
	IsFrozen            bool            `json:"isFrozen"`
	Version             int64           `json:"version"`
}

func (w *Wallet) Snapshot() WalletBalance {
	return WalletBalance{
		WalletID:            w.ID,
		UserID:              w.UserID,
		Type:                w.Type,
		Balance:             w.Balance,
		ReservedBalance:     w.ReservedBalance,
		WithdrawableBalance: w.WithdrawableBalance,
		TotalEarnings:       w.TotalEarnings,
		TotalSpent:          w.TotalSpent,
		Currency:            w.Currency,
		IsFrozen:            w.IsFrozen,
		Version:             w.Version,
	}
}
