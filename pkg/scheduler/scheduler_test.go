package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fallpaper/fallpaper/pkg/adapter"
	"github.com/fallpaper/fallpaper/pkg/downloader"
	"github.com/fallpaper/fallpaper/pkg/imageproc"
	"github.com/fallpaper/fallpaper/pkg/logging"
	"github.com/fallpaper/fallpaper/pkg/runner"
	"github.com/fallpaper/fallpaper/pkg/runproc"
	"github.com/fallpaper/fallpaper/pkg/store"
	"github.com/fallpaper/fallpaper/pkg/tracing"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "scheduler_test.db")
	os.Remove(dbPath)
	log := logging.NewDefault()

	st, err := store.Open(store.Options{Path: dbPath}, log, tracing.New())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := adapter.NewRegistry()
	dl := downloader.New(downloader.Options{MaxConcurrent: 1, RequestTimeoutMs: 1000}, log)
	proc := imageproc.New(st, dl, log, filepath.Join(t.TempDir(), "images"), filepath.Join(t.TempDir(), "tmp"))
	r := runner.New(st, registry, proc, log)
	rp := runproc.New(st, r, runproc.Options{
		StaleRunTimeout:   time.Hour,
		MaxPendingPerPoll: 10,
		RetryBackoffBase:  time.Second,
	}, log)

	sch := New(st, rp, Options{PollCron: "0 0 1 1 *"}, log)
	return sch, st
}

func createSourceAndSchedule(t *testing.T, st *store.Store, enabled bool, cron string) *store.Schedule {
	t.Helper()
	ctx := context.Background()
	// Source names are unique, so the name depends on enabled; a test may
	// create one enabled and one disabled source.
	name := "src-disabled"
	if enabled {
		name = "src-enabled"
	}
	src := &store.Source{Name: name, Kind: "mock", Params: "{}", LookupLimit: 10, Enabled: enabled}
	if err := st.CreateSource(ctx, src); err != nil {
		t.Fatalf("create source: %v", err)
	}
	sch := &store.Schedule{SourceID: src.ID, CronExpr: cron}
	if err := st.CreateSchedule(ctx, sch); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return sch
}

func TestStartArmsOnlyEnabledSourceSchedules(t *testing.T) {
	s, st := newTestScheduler(t)
	defer s.Stop()

	enabledSch := createSourceAndSchedule(t, st, true, "0 0 1 1 *")
	createSourceAndSchedule(t, st, false, "0 0 1 1 *")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) != 1 {
		t.Fatalf("expected exactly 1 armed timer, got %d", len(s.timers))
	}
	if _, ok := s.timers[enabledSch.ID]; !ok {
		t.Error("expected the enabled source's schedule to be armed")
	}
}

func TestFireCreatesRunForEnabledSource(t *testing.T) {
	s, st := newTestScheduler(t)
	defer s.Stop()

	sch := createSourceAndSchedule(t, st, true, "0 0 1 1 *")

	s.fire(sch)

	runs, err := st.ListRecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected exactly 1 run created, got %d", len(runs))
	}
	if runs[0].ScheduleID == nil || *runs[0].ScheduleID != sch.ID {
		t.Errorf("expected run's scheduleId to reference %s, got %+v", sch.ID, runs[0].ScheduleID)
	}
	if runs[0].State != store.RunPending {
		t.Errorf("expected newly fired run to be pending, got %s", runs[0].State)
	}
}

func TestFireSkipsDisabledSourceReadThrough(t *testing.T) {
	s, st := newTestScheduler(t)
	defer s.Stop()

	sch := createSourceAndSchedule(t, st, true, "0 0 1 1 *")

	src, err := st.GetSource(context.Background(), sch.SourceID)
	if err != nil {
		t.Fatal(err)
	}
	src.Enabled = false
	if err := st.UpdateSource(context.Background(), src); err != nil {
		t.Fatalf("disable source: %v", err)
	}

	s.fire(sch)

	runs, err := st.ListRecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no run created for a source disabled after load, got %d", len(runs))
	}
}

func TestFireReArmsScheduleAfterFiring(t *testing.T) {
	s, st := newTestScheduler(t)
	defer s.Stop()

	sch := createSourceAndSchedule(t, st, true, "0 0 1 1 *")
	s.fire(sch)

	s.mu.Lock()
	_, ok := s.timers[sch.ID]
	s.mu.Unlock()
	if !ok {
		t.Error("expected fire to re-arm the schedule's timer")
	}
}

func TestFireAfterStopIsNoop(t *testing.T) {
	s, st := newTestScheduler(t)
	sch := createSourceAndSchedule(t, st, true, "0 0 1 1 *")
	s.Stop()

	s.fire(sch)

	runs, err := st.ListRecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected fire after Stop to create no runs, got %d", len(runs))
	}
}

func TestReloadPicksUpDisabledSource(t *testing.T) {
	s, st := newTestScheduler(t)
	defer s.Stop()

	sch := createSourceAndSchedule(t, st, true, "0 0 1 1 *")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	src, err := st.GetSource(context.Background(), sch.SourceID)
	if err != nil {
		t.Fatal(err)
	}
	src.Enabled = false
	if err := st.UpdateSource(context.Background(), src); err != nil {
		t.Fatalf("disable source: %v", err)
	}

	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) != 0 {
		t.Errorf("expected reload to drop the now-disabled source's schedule, got %d timers", len(s.timers))
	}
}

func TestStopReleasesAllTimers(t *testing.T) {
	s, st := newTestScheduler(t)
	createSourceAndSchedule(t, st, true, "0 0 1 1 *")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) != 0 {
		t.Errorf("expected Stop to release every timer, got %d remaining", len(s.timers))
	}
	if s.pollTmr != nil {
		select {
		case <-s.stopped:
		default:
			t.Error("expected stopped channel to be closed")
		}
	}
}

func TestNewPanicsOnInvalidPollCron(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected New to panic on an invalid poll cron expression")
		}
	}()
	dbPath := filepath.Join(t.TempDir(), "scheduler_panic_test.db")
	os.Remove(dbPath)
	log := logging.NewDefault()
	st, err := store.Open(store.Options{Path: dbPath}, log, tracing.New())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	registry := adapter.NewRegistry()
	dl := downloader.New(downloader.Options{MaxConcurrent: 1, RequestTimeoutMs: 1000}, log)
	proc := imageproc.New(st, dl, log, filepath.Join(t.TempDir(), "images"), filepath.Join(t.TempDir(), "tmp"))
	r := runner.New(st, registry, proc, log)
	rp := runproc.New(st, r, runproc.Options{
		StaleRunTimeout:   time.Hour,
		MaxPendingPerPoll: 10,
		RetryBackoffBase:  time.Second,
	}, log)

	New(st, rp, Options{PollCron: "not a cron"}, log)
}

func TestTriggerNowDelegatesToProcessor(t *testing.T) {
	s, _ := newTestScheduler(t)
	defer s.Stop()

	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("trigger now: %v", err)
	}
}
