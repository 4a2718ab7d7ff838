package dump

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval matches the upstream's daily dump publication.
const DefaultInterval = 24 * time.Hour

// Runner is the part of Pipeline the scheduler needs.
type Runner interface {
	Run(ctx context.Context) Result
}

// Scheduler re-runs ingestion on a fixed interval.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger
}

func NewScheduler(runner Runner, interval time.Duration, runOnStart bool, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, interval: interval, runOnStart: runOnStart, logger: logger}
}

// Start runs until ctx is cancelled. A failed run is logged and retried at
// the next tick; there is no retry inside a tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "dump ingestion scheduler started",
		"interval", s.interval,
		"run_on_start", s.runOnStart,
	)
	if s.runOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	res := s.runner.Run(ctx)
	if !res.Success {
		s.logger.WarnContext(ctx, "scheduled dump ingestion did not succeed", "message", res.Message)
	}
}
