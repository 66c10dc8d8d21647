// Package runproc implements C8: the Run Processor. It polls due pending
// runs, executes them via the Source Runner, and owns retry/backoff and
// stale-run recovery (spec.md §4.8).
package runproc

import (
	"context"
	"time"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/logging"
	"github.com/fallpaper/fallpaper/pkg/runner"
	"github.com/fallpaper/fallpaper/pkg/store"
)

// Options configures the tick (spec.md §4.2's scheduler group).
type Options struct {
	StaleRunTimeout    time.Duration
	MaxPendingPerPoll  int
	RetryBackoffBase   time.Duration
}

// Processor is C8.
type Processor struct {
	store  *store.Store
	runner *runner.Runner
	opts   Options
	log    *logging.Logger
}

// New builds a Processor.
func New(st *store.Store, r *runner.Runner, opts Options, log *logging.Logger) *Processor {
	return &Processor{store: st, runner: r, opts: opts, log: log}
}

// Tick runs one cooperative cycle: recoverStale, then claim and execute
// due pending runs sequentially (spec.md §4.8).
func (p *Processor) Tick(ctx context.Context) error {
	if err := p.recoverStale(ctx, time.Now()); err != nil {
		p.log.Error("runproc_recover_stale_failed").Err(err).Send()
		return err
	}

	claimed, err := p.store.ClaimPendingRuns(ctx, time.Now(), p.opts.MaxPendingPerPoll)
	if err != nil {
		p.log.Error("runproc_claim_failed").Err(err).Send()
		return err
	}
	for _, run := range claimed {
		p.execute(ctx, run)
	}
	return nil
}

// TriggerProcessing is the external "run now" nudge (spec.md §4.8); it
// runs the same tick without waiting for the poll cron.
func (p *Processor) TriggerProcessing(ctx context.Context) error {
	return p.Tick(ctx)
}

// CreateManualRun is the admin-surface "create manual run" operation
// (spec.md §6/§8 scenario 5): it rejects a disabled source with a
// ValidationError rather than materializing a pending row for it, then
// inserts the pending run for the Run Processor to pick up.
func (p *Processor) CreateManualRun(ctx context.Context, sourceID string) (*store.Run, error) {
	src, err := p.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !src.Enabled {
		return nil, fperrors.Validation("sourceId", "source is disabled")
	}

	run := &store.Run{
		SourceID:    &src.ID,
		Name:        store.RunNameFetchSource,
		State:       store.RunPending,
		ScheduledAt: time.Now(),
	}
	if err := p.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// RecoverRunsOnStartup treats every running row as orphaned by definition
// (spec.md §3's invariant: "any persisted running row implies an owner
// crash") and applies the retry/fail rule with reason "interrupted by
// server restart" and immediate scheduledAt.
func (p *Processor) RecoverRunsOnStartup(ctx context.Context) error {
	runs, err := p.store.FindAllRunning(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, run := range runs {
		p.applyRetryOrFail(ctx, run, "interrupted by server restart", now, true)
	}
	return nil
}

// recoverStale reclaims running rows whose startedAt is older than
// staleRunTimeout (spec.md §4.8's recoverStale).
func (p *Processor) recoverStale(ctx context.Context, now time.Time) error {
	threshold := now.Add(-p.opts.StaleRunTimeout)
	runs, err := p.store.FindStaleRunning(ctx, threshold)
	if err != nil {
		return err
	}
	for _, run := range runs {
		p.applyRetryOrFail(ctx, run, "timed out", now, false)
	}
	return nil
}

// applyRetryOrFail implements the shared retry-or-fail rule spec.md §4.8
// describes for recoverStale, recoverRunsOnStartup, and a C7 error thrown
// mid-run: if retryCount < maxRetries, transition to pending, increment
// retryCount, and advance scheduledAt by base*2^retryCount (computed
// against the PRE-increment count, matching the scenario trace in
// spec.md §8: retry 1 is +base, retry 2 is +2*base, retry 3 is +4*base).
// With immediate set (startup recovery), scheduledAt is now instead.
// Otherwise transition to failed.
func (p *Processor) applyRetryOrFail(ctx context.Context, run *store.Run, reason string, now time.Time, immediate bool) {
	if run.RetryCount < run.MaxRetries {
		delay := backoffDelay(p.opts.RetryBackoffBase, run.RetryCount)
		if immediate {
			delay = 0
		}
		run.RetryCount++
		run.State = store.RunPending
		run.ScheduledAt = now.Add(delay)
		run.Error = reason
		run.StartedAt = nil
		p.log.Warn("run_recovered_to_pending").Str("run_id", run.ID).Int("retry_count", run.RetryCount).Send()
	} else {
		run.State = store.RunFailed
		run.CompletedAt = &now
		run.Error = reason
		p.log.Error("run_recovery_exhausted").Str("run_id", run.ID).Send()
	}
	if err := p.store.UpdateRun(ctx, run); err != nil {
		p.log.Error("run_recovery_persist_failed").Str("run_id", run.ID).Err(err).Send()
	}
}

// execute drives one claimed run end-to-end, mapping the Source Runner's
// outcome onto the Run's final state (spec.md §4.8).
func (p *Processor) execute(ctx context.Context, run *store.Run) {
	run.ProgressMessage = "Starting…"
	if err := p.store.UpdateRun(ctx, run); err != nil {
		p.log.Error("run_execute_persist_failed").Str("run_id", run.ID).Err(err).Send()
		return
	}

	if run.SourceID == nil {
		p.fail(ctx, run, "run has no source")
		return
	}

	outcome := p.runner.Run(ctx, *run.SourceID, func(current, total int, message string) {
		if err := p.store.UpdateRunProgress(ctx, run.ID, current, total, message); err != nil {
			p.log.Error("run_progress_persist_failed").Str("run_id", run.ID).Err(err).Send()
		}
	})

	now := time.Now()
	if !outcome.Success {
		if outcome.Error == nil {
			p.fail(ctx, run, "run failed")
			return
		}
		// NotFound/ValidationFailed are never retried (spec.md §7); every
		// other C7 error is treated as transient I/O and promoted to the
		// run-level retry decision.
		if fperrors.IsNotFound(outcome.Error) || fperrors.IsValidation(outcome.Error) {
			p.fail(ctx, run, outcome.Error.Error())
			return
		}
		p.applyRetryOrFail(ctx, run, outcome.Error.Error(), now, false)
		return
	}

	run.State = store.RunCompleted
	run.CompletedAt = &now
	run.ProgressCurrent = outcome.ImagesDownloaded
	run.ProgressTotal = outcome.ImagesFound
	if outcome.SkipReason != "" {
		run.ProgressMessage = outcome.SkipReason
	} else {
		run.ProgressMessage = "Completed"
	}
	run.Output = runner.MarshalOutput(outcome.Output)
	if err := p.store.UpdateRun(ctx, run); err != nil {
		p.log.Error("run_complete_persist_failed").Str("run_id", run.ID).Err(err).Send()
	}
	p.log.Info("run_completed").Str("run_id", run.ID).Int("downloaded", outcome.ImagesDownloaded).Send()
}

func (p *Processor) fail(ctx context.Context, run *store.Run, message string) {
	now := time.Now()
	run.State = store.RunFailed
	run.CompletedAt = &now
	run.Error = message
	run.ProgressMessage = message
	if err := p.store.UpdateRun(ctx, run); err != nil {
		p.log.Error("run_fail_persist_failed").Str("run_id", run.ID).Err(err).Send()
	}
}
