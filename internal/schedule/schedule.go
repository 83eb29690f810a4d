// Package schedule triggers sync runs on a fixed interval.
package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunFunc executes one sync run.
type RunFunc func(ctx context.Context) error

// Scheduler invokes a RunFunc on a fixed interval until its context is
// canceled. Overlap protection is the sync lock's job, not the scheduler's.
type Scheduler struct {
	interval   time.Duration
	run        RunFunc
	runAtStart bool
	logger     *zap.Logger
}

// New constructs a Scheduler. When runAtStart is set the first run fires
// immediately instead of waiting one interval.
func New(interval time.Duration, run RunFunc, runAtStart bool, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		interval:   interval,
		run:        run,
		runAtStart: runAtStart,
		logger:     logger,
	}
}

// Run blocks until ctx finishes, triggering runs on each tick. Run errors
// are logged and do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context) {
	if s.runAtStart {
		s.trigger(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	s.logger.Info("scheduled sync starting")
	if err := s.run(ctx); err != nil {
		s.logger.Error("scheduled sync failed", zap.Error(err))
	}
}
