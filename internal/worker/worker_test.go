package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/config"
	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/services"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
)

type call struct {
	method     string
	campaignID string
	streamerID string
	amount     string
	reason     string
	forfeit    bool
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{fail: make(map[string]error)}
}

func (f *fakeHandler) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.fail[c.method+":"+c.campaignID]
}

func (f *fakeHandler) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeHandler) HandleCampaignActivation(_ context.Context, campaignID string) error {
	return f.record(call{method: "activate", campaignID: campaignID})
}

func (f *fakeHandler) HandleCampaignPause(_ context.Context, campaignID string) error {
	return f.record(call{method: "pause", campaignID: campaignID})
}

func (f *fakeHandler) HandleCampaignResume(_ context.Context, campaignID string) error {
	return f.record(call{method: "resume", campaignID: campaignID})
}

func (f *fakeHandler) HandleBudgetIncrease(_ context.Context, campaignID string, increase decimal.Decimal) error {
	return f.record(call{method: "increase", campaignID: campaignID, amount: increase.String()})
}

func (f *fakeHandler) HandleBudgetDecrease(_ context.Context, campaignID string, decrease decimal.Decimal) (decimal.Decimal, error) {
	return decrease, f.record(call{method: "decrease", campaignID: campaignID, amount: decrease.String()})
}

func (f *fakeHandler) HandleMilestoneCompletion(_ context.Context, input services.MilestoneInput) (*services.MilestoneResult, error) {
	err := f.record(call{method: "milestone:" + input.MilestoneType, campaignID: input.CampaignID,
		streamerID: input.StreamerID, amount: input.Amount.String()})
	if err != nil {
		return nil, err
	}
	return &services.MilestoneResult{}, nil
}

func (f *fakeHandler) HandleCampaignCompletion(_ context.Context, campaignID string) error {
	return f.record(call{method: "complete", campaignID: campaignID})
}

func (f *fakeHandler) HandleCampaignCancellation(_ context.Context, campaignID, reason string) error {
	return f.record(call{method: "cancel", campaignID: campaignID, reason: reason})
}

func (f *fakeHandler) HandleEarlyParticipationEnd(_ context.Context, campaignID, streamerID, reason string) error {
	return f.record(call{method: "leave", campaignID: campaignID, streamerID: streamerID, reason: reason})
}

func (f *fakeHandler) HandleStreamerRemoval(_ context.Context, campaignID, streamerID, reason string, forfeit bool) error {
	return f.record(call{method: "remove", campaignID: campaignID, streamerID: streamerID, reason: reason, forfeit: forfeit})
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name string
		msg  models.LifecycleMessage
		want call
	}{
		{"activation", models.LifecycleMessage{EventType: models.LifecycleActivated, CampaignID: "c1"},
			call{method: "activate", campaignID: "c1"}},
		{"pause", models.LifecycleMessage{EventType: models.LifecyclePaused, CampaignID: "c1"},
			call{method: "pause", campaignID: "c1"}},
		{"resume", models.LifecycleMessage{EventType: models.LifecycleResumed, CampaignID: "c1"},
			call{method: "resume", campaignID: "c1"}},
		{"budget increase", models.LifecycleMessage{EventType: models.LifecycleBudgetIncreased, CampaignID: "c1", Amount: decimal.NewFromInt(50)},
			call{method: "increase", campaignID: "c1", amount: "50"}},
		{"budget decrease", models.LifecycleMessage{EventType: models.LifecycleBudgetDecreased, CampaignID: "c1", Amount: decimal.NewFromInt(20)},
			call{method: "decrease", campaignID: "c1", amount: "20"}},
		{"milestone", models.LifecycleMessage{EventType: models.LifecycleMilestone, CampaignID: "c1", StreamerID: "s1",
			MilestoneType: "impressions", Amount: decimal.NewFromInt(1000)},
			call{method: "milestone:impressions", campaignID: "c1", streamerID: "s1", amount: "1000"}},
		{"completion", models.LifecycleMessage{EventType: models.LifecycleCompleted, CampaignID: "c1"},
			call{method: "complete", campaignID: "c1"}},
		{"cancellation", models.LifecycleMessage{EventType: models.LifecycleCancelled, CampaignID: "c1", Reason: "brand request"},
			call{method: "cancel", campaignID: "c1", reason: "brand request"}},
		{"left early", models.LifecycleMessage{EventType: models.LifecycleParticipantLeft, CampaignID: "c1", StreamerID: "s1", Reason: "left"},
			call{method: "leave", campaignID: "c1", streamerID: "s1", reason: "left"}},
		{"removed", models.LifecycleMessage{EventType: models.LifecycleStreamerRemoved, CampaignID: "c1", StreamerID: "s1",
			Reason: "fraud", ForfeitEarnings: true},
			call{method: "remove", campaignID: "c1", streamerID: "s1", reason: "fraud", forfeit: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakeHandler()
			if err := Dispatch(context.Background(), h, tt.msg); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			calls := h.snapshot()
			if len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("calls = %+v, want [%+v]", calls, tt.want)
			}
		})
	}
}

func TestDispatchUnknownType(t *testing.T) {
	h := newFakeHandler()
	err := Dispatch(context.Background(), h, models.LifecycleMessage{EventType: "campaign.exploded", CampaignID: "c1"})
	if !errors.Is(err, models.ErrBadRequest) {
		t.Fatalf("Dispatch() error = %v, want bad request", err)
	}
	if len(h.snapshot()) != 0 {
		t.Error("handler should not be called for unknown types")
	}
}

func TestBatchProcessorGroupsByCampaign(t *testing.T) {
	h := newFakeHandler()
	h.fail["pause:a"] = errors.New("boom")
	bp := NewBatchProcessor(0, h, logger.NewNop())

	msgs := []models.LifecycleMessage{
		{EventType: models.LifecycleActivated, CampaignID: "a"},
		{EventType: models.LifecycleActivated, CampaignID: "b"},
		{EventType: models.LifecyclePaused, CampaignID: "a"},
		{EventType: models.LifecyclePaused, CampaignID: "b"},
		{EventType: models.LifecycleResumed, CampaignID: "a"},
		{EventType: models.LifecycleResumed, CampaignID: "b"},
	}
	for i, m := range msgs {
		bp.AddMessage(&sarama.ConsumerMessage{Offset: int64(i)}, m)
	}

	bp.ProcessBatch(context.Background())

	want := []call{
		{method: "activate", campaignID: "a"},
		{method: "pause", campaignID: "a"},
		{method: "activate", campaignID: "b"},
		{method: "pause", campaignID: "b"},
		{method: "resume", campaignID: "b"},
	}
	got := h.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if bp.Len() != 0 {
		t.Errorf("Len() = %d after batch, want 0", bp.Len())
	}
}

func TestBatchProcessorProcessRemainingAfterCancel(t *testing.T) {
	h := newFakeHandler()
	bp := NewBatchProcessor(0, h, logger.NewNop())
	bp.AddMessage(&sarama.ConsumerMessage{}, models.LifecycleMessage{EventType: models.LifecycleCompleted, CampaignID: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bp.ProcessRemaining(ctx)

	if got := h.snapshot(); len(got) != 1 || got[0].method != "complete" {
		t.Fatalf("calls = %+v, want one completion", got)
	}
}

func TestPartitionManagerConsumesLifecycleTopic(t *testing.T) {
	cfg := config.KafkaConfig{LifecycleTopic: "campaign.lifecycle", Partitions: 1}
	consumer := mocks.NewConsumer(t, nil)
	pc := consumer.ExpectConsumePartition(cfg.LifecycleTopic, 0, sarama.OffsetNewest)

	h := newFakeHandler()
	m := NewPartitionManager(cfg, 10*time.Millisecond, h, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.consume(ctx, consumer) }()

	valid, _ := json.Marshal(models.LifecycleMessage{EventID: "e1", EventType: models.LifecycleActivated, CampaignID: "c1"})
	missingCampaign, _ := json.Marshal(models.LifecycleMessage{EventID: "e2", EventType: models.LifecyclePaused})
	pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte("not json")})
	pc.YieldMessage(&sarama.ConsumerMessage{Value: missingCampaign})
	pc.YieldMessage(&sarama.ConsumerMessage{Value: valid})

	deadline := time.Now().Add(2 * time.Second)
	for len(h.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("consume() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("partition workers did not stop")
	}

	got := h.snapshot()
	if len(got) != 1 || got[0] != (call{method: "activate", campaignID: "c1"}) {
		t.Fatalf("calls = %+v, want a single activation of c1", got)
	}
}

type fakeSweeps struct {
	completionErr error
	completions   int
	holds         int
}

func (f *fakeSweeps) CheckAllCampaignsForCompletion(context.Context) (*services.SweepReport, error) {
	f.completions++
	if f.completionErr != nil {
		return nil, f.completionErr
	}
	return &services.SweepReport{Checked: 2, Completed: []string{"c1"}}, nil
}

func (f *fakeSweeps) ReleaseAllExpiredHolds(context.Context) (*services.HoldSweepReport, error) {
	f.holds++
	return &services.HoldSweepReport{Failed: map[string]string{"u1": "frozen"}}, nil
}

func TestSweeper(t *testing.T) {
	f := &fakeSweeps{completionErr: errors.New("db down")}
	s := NewSweeper(f, f, time.Hour, time.Hour, logger.NewNop())

	s.SweepCompletions(context.Background())
	f.completionErr = nil
	s.SweepCompletions(context.Background())
	s.SweepHolds(context.Background())

	if f.completions != 2 || f.holds != 1 {
		t.Fatalf("completions = %d, holds = %d", f.completions, f.holds)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
