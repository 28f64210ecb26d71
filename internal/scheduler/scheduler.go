package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/hourly-weather-sync/internal/logging"
	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

// CycleRunner executes one sync cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) weather.CycleResult
}

// Scheduler runs cycles one at a time, forever. By default it sleeps a fixed
// interval after every cycle; with a cron expression it fires on the cron
// schedule instead, skipping a tick while a cycle is still running.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	logger   *slog.Logger

	cron   *gocron.Scheduler
	runCtx context.Context

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new Scheduler. A non-empty cronExpr (five fields, or six with
// leading seconds) is parsed here so that a bad expression fails at startup.
func New(runner CycleRunner, interval time.Duration, cronExpr string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		sleep:    sleepCtx,
	}

	if cronExpr != "" {
		c := gocron.NewScheduler(time.UTC)
		schedule := c.Cron
		if len(strings.Fields(cronExpr)) == 6 {
			schedule = c.CronWithSeconds
		}
		_, err := schedule(cronExpr).SingletonMode().Do(func() {
			s.RunOnce(s.runCtx)
		})
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
		}
		s.cron = c
	}
	return s, nil
}

// Run blocks until ctx is cancelled. Cycle failures never stop it.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cron != nil {
		return s.runCron(ctx)
	}

	s.logger.Info("scheduler started", "interval", s.interval)
	for {
		s.RunOnce(ctx)

		s.logger.Info("next run scheduled", "in", s.interval)
		if err := s.sleep(ctx, s.interval); err != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context) error {
	s.runCtx = ctx
	s.logger.Info("scheduler started in cron mode")
	s.cron.StartAsync()

	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunOnce runs a single cycle, converting a panic into a failed result.
func (s *Scheduler) RunOnce(ctx context.Context) (res weather.CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.Critical(s.logger, "unexpected error in sync loop",
				"panic", r, "stack", string(debug.Stack()))
			res = weather.CycleResult{
				Outcome: weather.OutcomeFailed,
				Err:     fmt.Errorf("unexpected error: %v", r),
			}
		}
	}()
	return s.runner.RunCycle(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
