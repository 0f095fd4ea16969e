package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

// Transaction type constants
const (
	TransactionTypeDeposit         TransactionType = "DEPOSIT"
	TransactionTypeCampaignReserve TransactionType = "CAMPAIGN_RESERVE"
	TransactionTypeCampaignCharge  TransactionType = "CAMPAIGN_CHARGE"
	TransactionTypeCampaignRefund  TransactionType = "CAMPAIGN_REFUND"
	TransactionTypeEarningsHold    TransactionType = "EARNINGS_HOLD"
	TransactionTypeEarningsRelease TransactionType = "EARNINGS_RELEASE"
	TransactionTypeEarningsCredit  TransactionType = "EARNINGS_CREDIT"
	TransactionTypeWithdrawal      TransactionType = "WITHDRAWAL"
	TransactionTypePlatformFee     TransactionType = "PLATFORM_FEE"
	TransactionTypeDisputeHold     TransactionType = "DISPUTE_HOLD"
	TransactionTypeAdminAdjustment TransactionType = "ADMIN_ADJUSTMENT"
)

type TransactionStatus string

// Status constants
const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	TransactionStatusDisputed   TransactionStatus = "disputed"
)

// Metadata is stored as JSONB.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}
	*m = out
	return nil
}

// Database model
type Transaction struct {
	ID                       string            `db:"id" json:"id"`
	WalletID                 string            `db:"wallet_id" json:"walletId"`
	UserID                   string            `db:"user_id" json:"userId"`
	Type                     TransactionType   `db:"transaction_type" json:"type"`
	Amount                   decimal.Decimal   `db:"amount" json:"amount"`
	Currency                 string            `db:"currency" json:"currency"`
	Status                   TransactionStatus `db:"status" json:"status"`
	CampaignID               *string           `db:"campaign_id" json:"campaignId,omitempty"`
	PaymentMethod            *string           `db:"payment_method" json:"paymentMethod,omitempty"`
	GatewayTransactionID     *string           `db:"gateway_transaction_id" json:"gatewayTransactionId,omitempty"`
	Description              string            `db:"description" json:"description"`
	Metadata                 Metadata          `db:"metadata" json:"metadata"`
	BalanceAfter             decimal.Decimal   `db:"balance_after" json:"balanceAfter"`
	ReservedBalanceAfter     decimal.Decimal   `db:"reserved_balance_after" json:"reservedBalanceAfter"`
	WithdrawableBalanceAfter decimal.Decimal   `db:"withdrawable_balance_after" json:"withdrawableBalanceAfter"`
	ProcessedAt              *time.Time        `db:"processed_at" json:"processedAt,omitempty"`
	ExpiresAt                *time.Time        `db:"expires_at" json:"expiresAt,omitempty"`
	CreatedBy                string            `db:"created_by" json:"createdBy"`
	CreatedAt                time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt                time.Time         `db:"updated_at" json:"updatedAt"`
}

func (t *Transaction) CampaignIDValue() string {
	if t.CampaignID == nil {
		return ""
	}
	return *t.CampaignID
}

// TransactionFilter selects ledger entries. Zero-valued fields are ignored.
type TransactionFilter struct {
	WalletID      string
	UserID        string
	CampaignID    string
	Types         []TransactionType
	Statuses      []TransactionStatus
	ExpiresBefore *time.Time
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
}

// Matches reports whether t satisfies the filter. Limit is not considered.
func (f TransactionFilter) Matches(t *Transaction) bool {
	if f.WalletID != "" && t.WalletID != f.WalletID {
		return false
	}
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.CampaignID != "" && t.CampaignIDValue() != f.CampaignID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, t.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if f.ExpiresBefore != nil && (t.ExpiresAt == nil || t.ExpiresAt.After(*f.ExpiresBefore)) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !t.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	return true
}

func containsType(types []TransactionType, t TransactionType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsStatus(statuses []TransactionStatus, s TransactionStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

// SumAmounts returns the signed sum of the transactions' amounts.
func SumAmounts(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for i := range txs {
		total = total.Add(txs[i].Amount)
	}
	return total
}
