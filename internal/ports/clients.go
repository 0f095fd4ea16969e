package ports

import (
	"context"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"

	"github.com/shopspring/decimal"
)

// EventPublisher is the fire-and-forget domain event bus.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// KeyPool releases the per-streamer overlay key held for a campaign.
type KeyPool interface {
	ReleaseKey(ctx context.Context, streamerID, campaignID string, cooloff time.Duration) error
}

// PaymentGateway starts an automatic top-up charge for a brand.
type PaymentGateway interface {
	InitiateAutoTopup(ctx context.Context, userID string, amount decimal.Decimal) error
}
