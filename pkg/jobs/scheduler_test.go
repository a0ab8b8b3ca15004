package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/config"
	"github.com/hzcy/chatbetter2api/pkg/models"
)

func defaultJobs() config.JobsConfig {
	return config.JobsConfig{
		RefreshSchedule: config.DefaultRefreshSchedule,
		ResetSchedule:   config.DefaultResetSchedule,
		CacheSchedule:   config.DefaultCacheSchedule,
		ModelsSchedule:  config.DefaultModelsSchedule,
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		cfg         func() config.JobsConfig
		wantRunning bool
		wantError   bool
	}{
		{
			name:        "default schedules",
			cfg:         defaultJobs,
			wantRunning: true,
		},
		{
			name: "disabled",
			cfg: func() config.JobsConfig {
				c := defaultJobs()
				c.Disabled = true
				return c
			},
			wantRunning: false,
		},
		{
			name:        "no schedules - no error, not running",
			cfg:         func() config.JobsConfig { return config.JobsConfig{} },
			wantRunning: false,
		},
		{
			name: "invalid schedule",
			cfg: func() config.JobsConfig {
				c := defaultJobs()
				c.ResetSchedule = "invalid cron"
				return c
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, manager := newTestManager(t)
			scheduler := NewScheduler(NewRunner(manager, &fakeRefresher{}), tt.cfg())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := scheduler.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", scheduler.IsRunning(), tt.wantRunning)
			}

			scheduler.Stop()
			if scheduler.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
		})
	}
}

func TestScheduler_NextRun(t *testing.T) {
	_, manager := newTestManager(t)
	scheduler := NewScheduler(NewRunner(manager, &fakeRefresher{}), defaultJobs())

	if next := scheduler.NextRun(JobCache); next != nil {
		t.Errorf("NextRun() before start = %v, want nil", next)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer scheduler.Stop()

	for _, name := range []string{JobRefresh, JobReset, JobCache} {
		next := scheduler.NextRun(name)
		if next == nil {
			t.Fatalf("NextRun(%s) after start returned nil", name)
		}
		if !next.After(time.Now()) {
			t.Errorf("NextRun(%s) = %v, want time in future", name, next)
		}
	}

	if next := scheduler.NextRun(JobModels); next != nil {
		t.Errorf("NextRun(%s) without a catalog = %v, want nil", JobModels, next)
	}
}

func TestScheduler_ModelsJobWithCatalog(t *testing.T) {
	_, manager := newTestManager(t)
	catalog := models.NewCatalog(filepath.Join(t.TempDir(), "models.json"))
	runner := NewRunner(manager, &fakeRefresher{}, WithCatalog(catalog, &fakeSource{}))
	scheduler := NewScheduler(runner, defaultJobs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer scheduler.Stop()

	if scheduler.NextRun(JobModels) == nil {
		t.Error("models job not scheduled")
	}
}

func TestScheduler_RunsJobs(t *testing.T) {
	store, manager := newTestManager(t)
	seed(t, store, "a@example.com", accounts.Patch{})

	refresher := &fakeRefresher{}
	scheduler := NewScheduler(NewRunner(manager, refresher), config.JobsConfig{RefreshSchedule: "@every 1s"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer scheduler.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for refresher.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("refresh job did not run")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestScheduler_GracefulShutdown(t *testing.T) {
	_, manager := newTestManager(t)
	scheduler := NewScheduler(NewRunner(manager, &fakeRefresher{}), defaultJobs())

	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	cancel()
	time.Sleep(100 * time.Millisecond)

	if scheduler.IsRunning() {
		t.Error("scheduler still running after context cancelled")
	}
}

func TestScheduler_MultipleStartStop(t *testing.T) {
	_, manager := newTestManager(t)
	scheduler := NewScheduler(NewRunner(manager, &fakeRefresher{}), defaultJobs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := scheduler.Start(ctx); err != nil {
			t.Fatalf("Start() iteration %d failed: %v", i, err)
		}
		if !scheduler.IsRunning() {
			t.Errorf("IsRunning() = false after Start() iteration %d", i)
		}

		scheduler.Stop()
		if scheduler.IsRunning() {
			t.Errorf("IsRunning() = true after Stop() iteration %d", i)
		}
	}
}
