package worker

import (
	"context"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/services"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"
)

type CompletionSweeper interface {
	CheckAllCampaignsForCompletion(ctx context.Context) (*services.SweepReport, error)
}

type HoldSweeper interface {
	ReleaseAllExpiredHolds(ctx context.Context) (*services.HoldSweepReport, error)
}

// Sweeper periodically completes finished campaigns and releases expired
// earnings holds.
type Sweeper struct {
	completion         CompletionSweeper
	holds              HoldSweeper
	completionInterval time.Duration
	holdInterval       time.Duration
	log                *logger.Logger
}

func NewSweeper(completion CompletionSweeper, holds HoldSweeper, completionInterval, holdInterval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		completion:         completion,
		holds:              holds,
		completionInterval: completionInterval,
		holdInterval:       holdInterval,
		log:                log,
	}
}

// Run blocks until ctx is cancelled. A sweep that is still running when
// the next tick fires delays that tick.
func (s *Sweeper) Run(ctx context.Context) error {
	completionTicker := time.NewTicker(s.completionInterval)
	defer completionTicker.Stop()
	holdTicker := time.NewTicker(s.holdInterval)
	defer holdTicker.Stop()

	s.log.Infow("sweeper started", "completion_interval", s.completionInterval, "hold_interval", s.holdInterval)

	for {
		select {
		case <-ctx.Done():
			s.log.Infow("sweeper stopped")
			return nil
		case <-completionTicker.C:
			s.SweepCompletions(ctx)
		case <-holdTicker.C:
			s.SweepHolds(ctx)
		}
	}
}

func (s *Sweeper) SweepCompletions(ctx context.Context) {
	report, err := s.completion.CheckAllCampaignsForCompletion(ctx)
	if err != nil {
		s.log.Errorw("completion sweep failed", "error", err)
		return
	}
	if len(report.Completed) > 0 || len(report.Failed) > 0 {
		s.log.Infow("completion sweep", "checked", report.Checked,
			"completed", report.Completed, "failed", len(report.Failed))
	}
}

func (s *Sweeper) SweepHolds(ctx context.Context) {
	report, err := s.holds.ReleaseAllExpiredHolds(ctx)
	if err != nil {
		s.log.Errorw("hold sweep failed", "error", err)
		return
	}
	if len(report.Failed) > 0 {
		s.log.Warnw("hold sweep had failures", "failed", report.Failed)
	}
}
