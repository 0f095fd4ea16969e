package memoryrepo

import (
	"context"
	"sync"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
)

type KYCRepository struct {
	mu      sync.Mutex
	records map[string]models.KYCRecord
}

var _ ports.KYCRepository = (*KYCRepository)(nil)

func NewKYCRepository() *KYCRepository {
	return &KYCRepository{records: map[string]models.KYCRecord{}}
}

func (r *KYCRepository) Put(record models.KYCRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.UserID] = record
}

func (r *KYCRepository) GetKYC(_ context.Context, userID string) (*models.KYCRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, models.NotFound("kyc record not found for user %s", userID)
	}
	return &rec, nil
}

// UserDirectory maps user ids to wallet types.
type UserDirectory struct {
	mu    sync.Mutex
	types map[string]models.WalletType
}

var _ ports.UserDirectory = (*UserDirectory)(nil)

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{types: map[string]models.WalletType{}}
}

func (d *UserDirectory) Put(userID string, walletType models.WalletType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.types[userID] = walletType
}

func (d *UserDirectory) WalletTypeFor(_ context.Context, userID string) (models.WalletType, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.types[userID]
	if !ok {
		return "", models.NotFound("user not found: %s", userID)
	}
	return t, nil
}
