package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/guildmarket/pkg/logger"
	"github.com/angelmondragon/guildmarket/pkg/metrics"
)

const defaultInterval = time.Hour

// errLockBusy means another replica holds the cycle lock.
var errLockBusy = errors.New("lock held elsewhere")

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service executes registered maintenance jobs on a fixed cadence. A redis
// lock keeps replicas from running the same cycle twice.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run executes a cycle immediately and then once per interval until ctx
// is canceled. Cycle errors are logged, never fatal.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single named job under the lock and returns its error.
func (s *Service) RunOnce(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	var jobErr error
	err := s.locked(ctx, func() { jobErr = s.runJob(ctx, job) })
	if errors.Is(err, errLockBusy) {
		return fmt.Errorf("job %q skipped: %w", name, err)
	}
	return errors.Join(err, jobErr)
}

func (s *Service) runCycle(ctx context.Context) error {
	err := s.locked(ctx, func() {
		s.logg.Info(ctx, "scheduled run starting")
		var failed []string
		for _, job := range s.registry.Jobs() {
			if s.runJob(ctx, job) != nil {
				failed = append(failed, job.Name())
			}
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"failed_jobs": len(failed),
			"failed":      failed,
		}), "scheduled run complete")
	})
	if errors.Is(err, errLockBusy) {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return nil
	}
	return err
}

// locked runs fn while holding the cycle lock. A failed release is logged
// because fn has already done its work.
func (s *Service) locked(ctx context.Context, fn func()) error {
	ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !ok {
		return errLockBusy
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()
	fn()
	return nil
}

// runJob turns a job panic into an error and records duration and outcome.
func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	s.logg.Debug(jobCtx, "job start")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
		took := time.Since(start)
		s.metrics.Observe(name, took, err)
		doneCtx := s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
		if err != nil {
			s.logg.Error(doneCtx, "job failed", err)
		} else {
			s.logg.Info(doneCtx, "job completed")
		}
	}()
	return job.Run(jobCtx)
}
