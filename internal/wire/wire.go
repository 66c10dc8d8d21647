// Package wire constructs the process's components in the declared
// startup sequence spec.md §9 calls for: capabilities first (logging,
// tracing), then the Store, then the pipeline (adapters, downloader,
// image processor, source runner), then the two singletons that depend on
// all of the above (run processor, cron scheduler).
package wire

import (
	"fmt"
	"time"

	"github.com/fallpaper/fallpaper/internal/config"
	"github.com/fallpaper/fallpaper/pkg/adapter"
	"github.com/fallpaper/fallpaper/pkg/adapter/adapters/mock"
	"github.com/fallpaper/fallpaper/pkg/adapter/adapters/s3object"
	"github.com/fallpaper/fallpaper/pkg/downloader"
	"github.com/fallpaper/fallpaper/pkg/imageproc"
	"github.com/fallpaper/fallpaper/pkg/logging"
	"github.com/fallpaper/fallpaper/pkg/runner"
	"github.com/fallpaper/fallpaper/pkg/runproc"
	"github.com/fallpaper/fallpaper/pkg/scheduler"
	"github.com/fallpaper/fallpaper/pkg/store"
	"github.com/fallpaper/fallpaper/pkg/tracing"
)

// App holds every long-lived component the daemon needs, assembled once
// at startup and torn down in reverse on shutdown.
type App struct {
	Config    *config.Snapshot
	ConfigPath string
	Store     *store.Store
	Log       *logging.Logger
	Registry  *adapter.Registry
	Runner    *runner.Runner
	RunProc   *runproc.Processor
	Scheduler *scheduler.Scheduler
}

// Build assembles the App per the startup sequence. configPath may be
// empty to use defaults-plus-environment only.
func Build(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("wire: load config: %w", err)
	}
	snap := config.NewSnapshot(cfg)

	log := logging.NewDefault()
	tracer := tracing.New()

	st, err := store.Open(store.Options{
		Path:         cfg.Database.Path,
		QueryLogging: cfg.Database.QueryLogging,
		Tracing:      cfg.Database.Tracing,
	}, log, tracer)
	if err != nil {
		return nil, fmt.Errorf("wire: open store: %w", err)
	}

	registry := adapter.NewRegistry()
	registry.Register(mock.New())
	registry.Register(s3object.New())

	dl := downloader.New(downloader.Options{
		MaxConcurrent:        cfg.Runner.MaxConcurrent,
		MinSpeedBytesPerSec:  cfg.Runner.MinSpeedBytesPerSec,
		SlowSpeedTimeoutMs:   cfg.Runner.SlowSpeedTimeoutMs,
		SpeedCheckIntervalMs: cfg.Runner.SpeedCheckIntervalMs,
		RequestTimeoutMs:     cfg.Runner.RequestTimeoutMs,
		UserAgent:            "fallpaperd/1.0",
	}, log)

	proc := imageproc.New(st, dl, log, cfg.Runner.ImageDir, cfg.Runner.TempDir)
	r := runner.New(st, registry, proc, log)

	rp := runproc.New(st, r, runproc.Options{
		StaleRunTimeout:   time.Duration(cfg.Scheduler.StaleRunTimeoutSec) * time.Second,
		MaxPendingPerPoll: cfg.Scheduler.MaxPendingRunsPerTick,
		RetryBackoffBase:  time.Duration(cfg.Scheduler.RetryBackoffBaseSec) * time.Second,
	}, log)

	sch := scheduler.New(st, rp, scheduler.Options{
		PollCron: cfg.Scheduler.PollCron,
	}, log)

	return &App{
		Config:     snap,
		ConfigPath: configPath,
		Store:      st,
		Log:        log,
		Registry:   registry,
		Runner:     r,
		RunProc:    rp,
		Scheduler:  sch,
	}, nil
}

// Shutdown stops the scheduler's timers and closes the store, in that
// order, so no in-flight tick tries to use a closed connection.
func (a *App) Shutdown() error {
	a.Scheduler.Stop()
	return a.Store.Close()
}
