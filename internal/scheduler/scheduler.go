package scheduler

import (
	"context"
	"log/slog"
	"time"

	"jobharvest/internal/domain"
)

// Harvester defines the interface for harvest runs.
type Harvester interface {
	Harvest(ctx context.Context) (*domain.HarvestStats, error)
}

type Scheduler struct {
	harvester  Harvester
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(harvester Harvester, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		harvester:  harvester,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Start runs a harvest immediately. With a zero interval it returns that
// run's error; otherwise it keeps harvesting on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return s.runHarvest(ctx)
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	if err := s.runHarvest(ctx); err != nil {
		s.logger.Error("harvest failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runHarvest(ctx); err != nil {
				s.logger.Error("harvest failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) runHarvest(ctx context.Context) error {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	_, err := s.harvester.Harvest(ctx)
	return err
}
