package recurring

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler wakes on an interval and drives Service.RunOnce.
type Scheduler struct {
	svc      Service
	interval time.Duration
	log      *slog.Logger
}

// NewScheduler constructs a scheduler that runs svc every interval.
func NewScheduler(svc Service, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{svc: svc, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. One pass runs immediately on start.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	n, err := s.svc.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("recurring scheduler pass failed", slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		s.log.Info("recurring scheduler pass complete", slog.Int("entries_posted", n))
	}
}
