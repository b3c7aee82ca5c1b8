// Package scheduler runs ingestion jobs once or periodically.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/geosensor-ingest/internal/ingest"
)

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context, job ingest.Job) (ingest.RunReport, error)
}

// Scheduler repeats a job every interval. Runs never overlap: a tick that
// fires while a run is in progress is skipped.
type Scheduler struct {
	runner   Runner
	job      ingest.Job
	interval time.Duration
	logger   *slog.Logger

	mu   sync.RWMutex
	last *ingest.RunReport
}

// New creates a Scheduler. A zero interval means a single run.
func New(runner Runner, job ingest.Job, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		job:      job,
		interval: interval,
		logger:   logger,
	}
}

// Run executes the job until ctx is done. With a zero interval it runs the
// job once and returns its error; otherwise it runs immediately and then on
// every tick, returning nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		_, err := s.runOnce(ctx)
		return err
	}

	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	_, err := sched.Every(s.interval).StartImmediately().Do(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.runOnce(ctx); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule ingestion every %s: %w", s.interval, err)
	}

	s.logger.Info("scheduler started", "interval", s.interval.String())
	sched.StartAsync()
	<-ctx.Done()
	sched.Stop()
	s.logger.Info("scheduler stopped", "reason", ctx.Err())
	return nil
}

// LastRun returns the report of the most recent completed run.
func (s *Scheduler) LastRun() (ingest.RunReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return ingest.RunReport{}, false
	}
	return *s.last, true
}

func (s *Scheduler) runOnce(ctx context.Context) (ingest.RunReport, error) {
	report, err := s.runner.Run(ctx, s.job)
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
	return report, err
}
