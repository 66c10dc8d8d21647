// Package scheduler implements C9: the Cron Scheduler. It holds one
// in-memory timer per active Schedule, materializes a pending Run when a
// timer fires, and drives the Run Processor's poll tick on its own cron
// (spec.md §4.9).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fallpaper/fallpaper/pkg/cronexpr"
	"github.com/fallpaper/fallpaper/pkg/logging"
	"github.com/fallpaper/fallpaper/pkg/runproc"
	"github.com/fallpaper/fallpaper/pkg/store"
)

// Options configures the scheduler's own poll cadence, independent of any
// individual schedule's cron expression (spec.md §4.2's scheduler group).
// PollCron is parsed the same way a schedule's cron expression is.
type Options struct {
	PollCron string
}

// Scheduler is C9. It is a process-wide singleton: exactly one instance
// should run against a given Store, since timers are held in memory and
// a second instance would double-fire every schedule.
type Scheduler struct {
	store    *store.Store
	proc     *runproc.Processor
	pollExpr *cronexpr.Expr
	log      *logging.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pollTmr *time.Timer
	stopped chan struct{}
	wg      sync.WaitGroup
}

// New builds a Scheduler. It panics if opts.PollCron is not a valid 5-field
// cron expression, since an invalid poll cadence leaves the run processor
// with no way to ever drain pending runs.
func New(st *store.Store, proc *runproc.Processor, opts Options, log *logging.Logger) *Scheduler {
	expr, err := cronexpr.Parse(opts.PollCron)
	if err != nil {
		panic(fmt.Sprintf("scheduler: invalid poll cron %q: %v", opts.PollCron, err))
	}
	return &Scheduler{
		store:    st,
		proc:     proc,
		pollExpr: expr,
		log:      log,
		timers:   make(map[string]*time.Timer),
		stopped:  make(chan struct{}),
	}
}

// Start recovers orphaned running rows, loads every enabled schedule into
// a timer, and arms the poll-cron timer that drives the Run Processor
// (spec.md §4.9's startup sequence).
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.proc.RecoverRunsOnStartup(ctx); err != nil {
		s.log.Error("scheduler_startup_recovery_failed").Err(err).Send()
		return err
	}
	if err := s.loadSchedules(ctx); err != nil {
		return err
	}
	s.armPollTimer(ctx)
	s.log.Info("scheduler_started").Int("schedules", len(s.timers)).Send()
	return nil
}

// Stop cancels every armed timer. Safe to call once; Start cannot be
// called again on the same instance afterward.
func (s *Scheduler) Stop() {
	close(s.stopped)
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	if s.pollTmr != nil {
		s.pollTmr.Stop()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Reload stops every armed schedule timer and reloads from the store,
// picking up inserts/updates/deletes and enabled/disabled flips made
// through the admin surface (spec.md §6's "reload schedules" operation).
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	return s.loadSchedules(ctx)
}

// loadSchedules reads every schedule joined with its source, skips
// schedules whose source is disabled, and arms a timer for the rest
// (spec.md §4.9).
func (s *Scheduler) loadSchedules(ctx context.Context) error {
	rows, err := s.store.ListSchedulesWithSource(ctx)
	if err != nil {
		s.log.Error("scheduler_load_failed").Err(err).Send()
		return err
	}
	now := time.Now()
	for _, row := range rows {
		if !row.Source.Enabled {
			continue
		}
		s.armSchedule(row.Schedule, now)
	}
	return nil
}

// armSchedule parses the schedule's cron expression and sets a one-shot
// timer for its next fire time; on fire the timer re-arms itself for the
// following occurrence, so schedules never need to be reloaded purely due
// to the passage of time.
func (s *Scheduler) armSchedule(sch *store.Schedule, now time.Time) {
	expr, err := cronexpr.Parse(sch.CronExpr)
	if err != nil {
		s.log.Error("scheduler_invalid_cron").Str("schedule_id", sch.ID).Str("cron", sch.CronExpr).Err(err).Send()
		return
	}
	next := expr.NextRun(now)
	if next.IsZero() {
		s.log.Error("scheduler_cron_has_no_future_occurrence").Str("schedule_id", sch.ID).Send()
		return
	}
	delay := next.Sub(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[sch.ID] = time.AfterFunc(delay, func() { s.fire(sch) })
}

// fire materializes a pending Run for the schedule's source, then re-arms
// the timer for the next occurrence. A disabled source is read-through
// checked here too, since a source can be disabled after the schedule was
// last loaded without a Reload happening in between.
func (s *Scheduler) fire(sch *store.Schedule) {
	select {
	case <-s.stopped:
		return
	default:
	}

	ctx := context.Background()
	src, err := s.store.GetSource(ctx, sch.SourceID)
	if err != nil {
		s.log.Error("scheduler_fire_source_lookup_failed").Str("schedule_id", sch.ID).Err(err).Send()
	} else if !src.Enabled {
		s.log.Info("scheduler_fire_skipped_disabled_source").Str("schedule_id", sch.ID).Send()
	} else {
		now := time.Now()
		run := &store.Run{
			SourceID:    &src.ID,
			ScheduleID:  &sch.ID,
			Name:        store.RunNameFetchSource,
			State:       store.RunPending,
			ScheduledAt: now,
		}
		if err := s.store.CreateRun(ctx, run); err != nil {
			s.log.Error("scheduler_fire_create_run_failed").Str("schedule_id", sch.ID).Err(err).Send()
		} else {
			s.log.Info("scheduler_fire_created_run").Str("schedule_id", sch.ID).Str("run_id", run.ID).Send()
		}
	}

	s.armSchedule(sch, time.Now())
}

// armPollTimer arms the recurring timer that drives the Run Processor's
// Tick on the scheduler's own poll cron, independent of any individual
// schedule's cron expression (spec.md §4.9's "a separate timer drives the
// run processor's poll on its own cadence"). It is parsed and re-armed via
// NextRun exactly the way armSchedule drives per-schedule timers.
func (s *Scheduler) armPollTimer(ctx context.Context) {
	next := s.pollExpr.NextRun(time.Now())
	delay := time.Until(next)

	s.mu.Lock()
	s.pollTmr = time.AfterFunc(delay, func() { s.poll(ctx) })
	s.mu.Unlock()
}

func (s *Scheduler) poll(ctx context.Context) {
	select {
	case <-s.stopped:
		return
	default:
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.proc.Tick(ctx); err != nil {
			s.log.Error("scheduler_poll_tick_failed").Err(err).Send()
		}
	}()

	s.armPollTimer(ctx)
}

// TriggerNow forces an immediate Run Processor tick, bypassing the poll
// cadence (spec.md §6's manual "trigger processing" admin hook).
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.proc.TriggerProcessing(ctx)
}
