package memoryrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
)

type CampaignRepository struct {
	mu             sync.Mutex
	campaigns      map[string]models.Campaign
	participations map[string]models.Participation
}

var _ ports.CampaignRepository = (*CampaignRepository)(nil)

func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{
		campaigns:      map[string]models.Campaign{},
		participations: map[string]models.Participation{},
	}
}

// PutCampaign stores or replaces a campaign. Test setup only.
func (r *CampaignRepository) PutCampaign(c models.Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = cloneCampaign(c)
}

// PutParticipation stores or replaces a participation. Test setup only.
func (r *CampaignRepository) PutParticipation(p models.Participation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participations[p.ID] = p
}

func (r *CampaignRepository) GetCampaign(_ context.Context, campaignID string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[campaignID]
	if !ok {
		return nil, models.NotFound("campaign not found: %s", campaignID)
	}
	c = cloneCampaign(c)
	return &c, nil
}

func (r *CampaignRepository) ListCampaignsByStatus(_ context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Campaign, 0)
	for _, c := range r.campaigns {
		if c.Status == status {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CampaignRepository) UpdateCampaign(_ context.Context, campaign *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.campaigns[campaign.ID]; !ok {
		return models.NotFound("campaign not found: %s", campaign.ID)
	}
	r.campaigns[campaign.ID] = cloneCampaign(*campaign)
	return nil
}

func (r *CampaignRepository) ListParticipations(_ context.Context, campaignID string, statuses ...models.ParticipationStatus) ([]models.Participation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Participation, 0)
	for _, p := range r.participations {
		if p.CampaignID != campaignID {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, p.Status) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CampaignRepository) GetParticipation(_ context.Context, campaignID, streamerID string) (*models.Participation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.participations {
		if p.CampaignID == campaignID && p.StreamerID == streamerID {
			return &p, nil
		}
	}
	return nil, models.NotFound("participation not found for streamer %s in campaign %s", streamerID, campaignID)
}

func (r *CampaignRepository) UpdateParticipation(_ context.Context, participation *models.Participation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participations[participation.ID]; !ok {
		return models.NotFound("participation not found: %s", participation.ID)
	}
	r.participations[participation.ID] = *participation
	return nil
}

func (r *CampaignRepository) CompleteActiveParticipations(_ context.Context, campaignID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, p := range r.participations {
		if p.CampaignID != campaignID || p.Status != models.ParticipationStatusActive {
			continue
		}
		completedAt, leftAt := at, at
		p.Status = models.ParticipationStatusCompleted
		p.CompletedAt = &completedAt
		p.LeftAt = &leftAt
		r.participations[id] = p
		n++
	}
	return n, nil
}

func hasStatus(statuses []models.ParticipationStatus, s models.ParticipationStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func cloneCampaign(c models.Campaign) models.Campaign {
	if c.Metadata != nil {
		md := make(models.Metadata, len(c.Metadata))
		for k, v := range c.Metadata {
			md[k] = v
		}
		c.Metadata = md
	}
	return c
}
