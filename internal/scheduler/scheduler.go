package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

type Scheduler struct {
	tasks    []Task
	interval time.Duration
}

func NewScheduler(interval time.Duration, tasks ...Task) *Scheduler {
	return &Scheduler{
		tasks:    tasks,
		interval: interval,
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	for _, task := range s.tasks {
		if err := task(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run calls every task each interval until ctx is done. A non-positive
// interval disables the scheduler; Run then only waits for ctx.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				slog.Warn("scheduled task failed", slog.Any("err", err))
			}
		}
	}
}

// Heartbeat logs that the process is alive, with its uptime.
func Heartbeat(logger *slog.Logger) Task {
	started := time.Now()
	return func(ctx context.Context) error {
		logger.DebugContext(ctx, "exporter alive", "uptime", time.Since(started).Round(time.Second))
		return nil
	}
}
