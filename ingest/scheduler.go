package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner runs one ingestion cycle.
type Runner interface {
	RunCycle(ctx context.Context, force bool) CycleResult
}

// Notifier is told about every successful cycle, e.g. to push the new
// snapshot to connected dashboards.
type Notifier interface {
	NotifyCycle(ctx context.Context, res CycleResult)
}

// Scheduler drives a Runner from a single ticker.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	notifier   Notifier
	log        *zap.SugaredLogger
}

func NewScheduler(runner Runner, interval time.Duration, runOnStart bool, notifier Notifier, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		notifier:   notifier,
		log:        log,
	}
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Infow("Scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Infow("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	res := s.runner.RunCycle(ctx, false)
	if res.Status == StatusOK && s.notifier != nil {
		s.notifier.NotifyCycle(ctx, res)
	}
}
