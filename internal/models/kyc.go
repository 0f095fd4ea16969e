package models

import "github.com/shopspring/decimal"

type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

// KYCRecord is the slice of the KYC profile the ledger consults.
// Zero limits fall back to the configured defaults.
type KYCRecord struct {
	UserID                 string          `db:"user_id" json:"userId"`
	Status                 KYCStatus       `db:"status" json:"status"`
	BankDetailsVerified    bool            `db:"bank_details_verified" json:"bankDetailsVerified"`
	MinimumWithdrawal      decimal.Decimal `db:"minimum_withdrawal" json:"minimumWithdrawal"`
	MaximumDailyWithdrawal decimal.Decimal `db:"maximum_daily_withdrawal" json:"maximumDailyWithdrawal"`
}

func (k *KYCRecord) CanWithdraw() bool {
	return k.Status == KYCStatusApproved && k.BankDetailsVerified
}
