package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hzcy/chatbetter2api/pkg/config"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
)

// Job names.
const (
	JobRefresh = "refresh_credentials"
	JobReset   = "reset_counts"
	JobCache   = "refresh_cache"
	JobModels  = "refresh_models"
)

// Scheduler runs the Runner operations on cron schedules.
type Scheduler struct {
	runner  *Runner
	cfg     config.JobsConfig
	metrics *metrics.Collector

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool
	logger  *slog.Logger
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner *Runner, cfg config.JobsConfig) *Scheduler {
	return &Scheduler{
		runner:  runner,
		cfg:     cfg,
		metrics: runner.metrics,
		logger:  slog.Default().With("component", "jobs.scheduler"),
	}
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobRefresh, s.cfg.RefreshSchedule, func(ctx context.Context) error {
			_, err := s.runner.RefreshAll(ctx, nil)
			return err
		}},
		{JobReset, s.cfg.ResetSchedule, func(ctx context.Context) error {
			_, err := s.runner.ResetCounts(ctx)
			return err
		}},
		{JobCache, s.cfg.CacheSchedule, s.runner.RefreshCache},
		{JobModels, s.cfg.ModelsSchedule, s.runner.RefreshModels},
	}
}

// Start validates every schedule and starts the cron loop. The scheduler
// stops when ctx is cancelled. A disabled configuration starts nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.cfg.Disabled {
		s.logger.Info("background jobs disabled")
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	entries := make(map[string]cron.EntryID)
	for _, j := range s.jobs() {
		if j.schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(j.schedule); err != nil {
			return fmt.Errorf("invalid cron schedule %q for %s: %w", j.schedule, j.name, err)
		}
		if j.name == JobModels && s.runner.catalog == nil {
			continue
		}

		id, err := c.AddFunc(j.schedule, func() { s.execute(ctx, j) })
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
		entries[j.name] = id
	}

	if len(entries) == 0 {
		s.logger.Info("no job schedules configured, skipping scheduler")
		return nil
	}

	c.Start()
	s.cron = c
	s.entries = entries
	s.running = true

	s.logger.Info("job scheduler started",
		"jobs", len(entries),
		"refresh_schedule", s.cfg.RefreshSchedule,
		"reset_schedule", s.cfg.ResetSchedule,
		"cache_schedule", s.cfg.CacheSchedule,
		"models_schedule", s.cfg.ModelsSchedule,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// execute runs one job and records its outcome.
func (s *Scheduler) execute(ctx context.Context, j job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.logger.Debug("starting scheduled job", "job", j.name)

	err := j.run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordJobRun(j.name, "failure", elapsed)
		s.logger.Error("scheduled job failed", "job", j.name, "error", err)
		return
	}

	s.metrics.RecordJobRun(j.name, "success", elapsed)
	s.logger.Debug("scheduled job completed", "job", j.name, "duration_ms", elapsed.Milliseconds())
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("job scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next run time of the named job, or nil when the job
// is not scheduled.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	id, ok := s.entries[name]
	if !ok {
		return nil
	}
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}
