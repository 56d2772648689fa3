package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
)

const defaultInterval = time.Hour

var errLeaseLost = errors.New("maintenance lease lost")

// ServiceParams configure the maintenance scheduler.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout caps a single job. Zero leaves jobs bounded only by the
	// cycle context.
	JobTimeout time.Duration
}

// Service runs the inventory maintenance jobs (threshold sync, low-stock
// sweep) on a fixed cadence. A cycle runs only on the worker holding the
// lease, and the lease is renewed before each job so a cycle that outlives
// its TTL stops instead of overlapping another worker.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// NewService builds the scheduler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
// Cycle failures are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.runLogged(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "inventory maintenance scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

// RunOnce executes a single cycle and returns every job failure.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

func (s *Service) runLogged(ctx context.Context) {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "inventory maintenance cycle failed", err)
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event":    "inventory.maintenance",
		"cycle_id": uuid.NewString(),
	})
	jobs := s.registry.Jobs()

	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire maintenance lease: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "inventory maintenance lease held by another worker; cycle skipped")
		s.skip(jobs)
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.WarnErr(ctx, "release maintenance lease", err)
		}
	}()

	s.logg.Info(s.logg.WithField(ctx, "jobs", len(jobs)), "inventory maintenance cycle starting")
	start := time.Now()
	var errs error
	ran := 0
	for i, job := range jobs {
		if i > 0 {
			if err := s.renew(ctx, job); err != nil {
				errs = multierr.Append(errs, err)
				s.skip(jobs[i:])
				break
			}
		}
		ran++
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}

	doneCtx := s.logg.WithFields(ctx, map[string]any{
		"jobs_run":    ran,
		"jobs_failed": len(multierr.Errors(errs)),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if errs != nil {
		s.logg.Warn(doneCtx, "inventory maintenance cycle finished with failures")
		return errs
	}
	s.logg.Info(doneCtx, "inventory maintenance cycle complete")
	return nil
}

// renew extends the lease ahead of next. A lease that cannot be confirmed is
// treated as lost.
func (s *Service) renew(ctx context.Context, next Job) error {
	held, err := s.lock.Extend(ctx)
	if err != nil {
		return fmt.Errorf("renew before %s: %w", next.Name(), err)
	}
	if !held {
		s.logg.Warn(s.logg.WithField(ctx, "job", next.Name()), "maintenance lease taken over; remaining jobs skipped")
		return fmt.Errorf("before %s: %w", next.Name(), errLeaseLost)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
		duration := time.Since(start)
		s.metrics.ObserveDuration(name, duration)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
		if err != nil {
			s.logg.Error(logCtx, "inventory maintenance job failed", err)
			s.metrics.IncFailure(name)
			return
		}
		s.logg.Info(logCtx, "inventory maintenance job finished")
		s.metrics.IncSuccess(name)
	}()

	s.logg.Info(jobCtx, "inventory maintenance job starting")
	if runErr := job.Run(jobCtx); runErr != nil {
		return fmt.Errorf("%s: %w", name, runErr)
	}
	return nil
}

func (s *Service) skip(jobs []Job) {
	for _, job := range jobs {
		s.metrics.IncSkipped(job.Name())
	}
}
