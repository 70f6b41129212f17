package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stock_digest/internal/domain"
	"stock_digest/internal/lock"
)

// Runner executes one digest run.
type Runner interface {
	Run(ctx context.Context) (*domain.DigestReport, error)
}

type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

type Scheduler struct {
	runner     Runner
	locker     Locker
	runAt      time.Duration
	loc        *time.Location
	runTimeout time.Duration
	logger     *slog.Logger

	now  func() time.Time
	wait func(d time.Duration) <-chan time.Time
}

// NewScheduler fires runner once a day at runAt (offset from local
// midnight) in loc. A nil locker runs without coordination.
func NewScheduler(runner Runner, locker Locker, runAt time.Duration, loc *time.Location, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if locker == nil {
		locker = lock.Noop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runner:     runner,
		locker:     locker,
		runAt:      runAt,
		loc:        loc,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler"),
		now:        time.Now,
		wait:       time.After,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "run_at", s.runAt, "location", s.loc.String())

	for {
		next := NextRun(s.now(), s.runAt, s.loc)
		delay := next.Sub(s.now())
		s.logger.Info("next digest run scheduled", "at", next, "in", delay.Round(time.Second))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-s.wait(delay):
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("digest run failed", "error", err)
			}
		}
	}
}

// RunOnce runs the digest under the run lock and the per-run timeout. It
// returns a nil report and nil error when another instance holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (*domain.DigestReport, error) {
	release, err := s.locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.logger.Info("digest run skipped, lock held elsewhere")
			return nil, nil
		}
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release run lock", "error", err)
		}
	}()

	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	report, err := s.runner.Run(runCtx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("digest run finished",
		"run_id", report.RunID,
		"processed", report.Processed,
		"delivered", report.Delivered,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)

	return report, nil
}

// NextRun returns the first instant strictly after now whose wall clock in
// loc equals offset past midnight.
func NextRun(now time.Time, offset time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	hour := int(offset / time.Hour)
	minute := int((offset % time.Hour) / time.Minute)

	y, m, d := local.Date()
	next := time.Date(y, m, d, hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, hour, minute, 0, 0, loc)
	}
	return next
}
