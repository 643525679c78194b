// Package scheduler runs jobs on a cron schedule in a fixed time zone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"moneyflow/internal/log"
)

// Job is one scheduled unit of work. The context carries the run timeout.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Overlapping runs of a job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	timeout time.Duration
	logger  *log.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a scheduler evaluating schedules in loc. Each run gets timeout
// when it is positive.
func New(loc *time.Location, timeout time.Duration, logger *log.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentScheduler)

	// cron logs through a printf-style logger; bridge it onto slog.
	bridge := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(bridge),
			cron.WithChain(cron.Recover(bridge), cron.SkipIfStillRunning(bridge)),
		),
		loc:     loc,
		timeout: timeout,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Add registers job under name on spec.
func (s *Scheduler) Add(name, spec string, job Job) (cron.EntryID, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		parent := s.ctx
		s.mu.Unlock()
		s.run(parent, name, job)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("Job scheduled", "job", name, "schedule", spec, "location", s.loc.String())
	return id, nil
}

// RunNow executes job synchronously under ctx with the same timeout and
// logging as a scheduled run.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	return s.run(ctx, name, job)
}

func (s *Scheduler) run(parent context.Context, name string, job Job) error {
	ctx := parent
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.timeout)
		defer cancel()
	}

	started := time.Now()
	err := job(ctx)
	duration := time.Since(started).Milliseconds()
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled job failed", "job", name,
			log.FieldError, err, log.FieldDuration, duration)
		return err
	}
	s.logger.InfoContext(ctx, "Scheduled job finished", "job", name, log.FieldDuration, duration)
	return nil
}

// Start begins dispatching jobs. Runs are cancelled when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
	}()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return errors.New("timed out waiting for running jobs")
	}
}

// Next returns the next activation time of the entry; zero before Start.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}
