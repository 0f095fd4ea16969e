package memoryrepo

import (
	"context"
	"sync"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/shopspring/decimal"
)

// EventRecorder keeps published events in order. Err, when set, is
// returned from every Publish after the event has been recorded.
type EventRecorder struct {
	mu     sync.Mutex
	events []models.Event
	Err    error
}

var _ ports.EventPublisher = (*EventRecorder)(nil)

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) Publish(_ context.Context, event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

func (r *EventRecorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *EventRecorder) OfType(eventType string) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// KeyRelease is one recorded KeyPool.ReleaseKey call.
type KeyRelease struct {
	StreamerID string
	CampaignID string
	Cooloff    time.Duration
}

// KeyPool records releases and fails for streamers listed in FailFor.
type KeyPool struct {
	mu       sync.Mutex
	released []KeyRelease
	FailFor  map[string]error
}

var _ ports.KeyPool = (*KeyPool)(nil)

func NewKeyPool() *KeyPool {
	return &KeyPool{FailFor: map[string]error{}}
}

func (p *KeyPool) ReleaseKey(_ context.Context, streamerID, campaignID string, cooloff time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.FailFor[streamerID]; ok {
		return err
	}
	p.released = append(p.released, KeyRelease{StreamerID: streamerID, CampaignID: campaignID, Cooloff: cooloff})
	return nil
}

func (p *KeyPool) Released() []KeyRelease {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]KeyRelease, len(p.released))
	copy(out, p.released)
	return out
}

// TopupRequest is one recorded auto top-up call.
type TopupRequest struct {
	UserID string
	Amount decimal.Decimal
}

type PaymentGateway struct {
	mu       sync.Mutex
	requests []TopupRequest
	Err      error
}

var _ ports.PaymentGateway = (*PaymentGateway)(nil)

func NewPaymentGateway() *PaymentGateway {
	return &PaymentGateway{}
}

func (g *PaymentGateway) InitiateAutoTopup(_ context.Context, userID string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.requests = append(g.requests, TopupRequest{UserID: userID, Amount: amount})
	return nil
}

func (g *PaymentGateway) Requests() []TopupRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]TopupRequest, len(g.requests))
	copy(out, g.requests)
	return out
}
