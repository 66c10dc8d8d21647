package store

import (
	"context"
	"database/sql"
	"time"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/idgen"
)

const runSelectCols = `SELECT id, source_id, schedule_id, name, state, input, output, error,
	progress_current, progress_total, progress_message, retry_count, max_retries,
	scheduled_at, started_at, completed_at, created_at, updated_at`

// CreateRun inserts a new pending (or caller-chosen state) run row.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	return s.scope(ctx, "store.CreateRun", func(ctx context.Context) error {
		if r.ID == "" {
			r.ID = idgen.New()
		}
		if r.MaxRetries == 0 {
			r.MaxRetries = 3
		}
		now := time.Now()
		r.CreatedAt, r.UpdatedAt = now, now
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO runs (id, source_id, schedule_id, name, state, input, output, error,
				progress_current, progress_total, progress_message, retry_count, max_retries,
				scheduled_at, started_at, completed_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.SourceID, r.ScheduleID, string(r.Name), string(r.State),
			nz(r.Input, "{}"), nz(r.Output, "{}"), r.Error,
			r.ProgressCurrent, r.ProgressTotal, r.ProgressMessage, r.RetryCount, r.MaxRetries,
			r.ScheduledAt.Unix(), unixPtr(r.StartedAt), unixPtr(r.CompletedAt),
			now.Unix(), now.Unix())
		if err != nil {
			return fperrors.Wrap(err, "failed to insert run")
		}
		return nil
	})
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var r *Run
	err := s.scope(ctx, "store.GetRun", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, runSelectCols+" FROM runs WHERE id = ?", id)
		var err error
		r, err = scanRun(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRecentRuns returns runs ordered by scheduledAt descending, for the
// admin surface's run history view.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	var out []*Run
	err := s.scope(ctx, "store.ListRecentRuns", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			runSelectCols+" FROM runs ORDER BY scheduled_at DESC LIMIT ?", limit)
		if err != nil {
			return fperrors.Wrap(err, "failed to list runs")
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRun(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// UpdateRun persists the full run row, used for progress/state transitions
// that don't have their own dedicated helper below.
func (s *Store) UpdateRun(ctx context.Context, r *Run) error {
	return s.scope(ctx, "store.UpdateRun", func(ctx context.Context) error {
		r.UpdatedAt = time.Now()
		res, err := s.db.ExecContext(ctx, `
			UPDATE runs SET source_id=?, schedule_id=?, name=?, state=?, input=?, output=?, error=?,
				progress_current=?, progress_total=?, progress_message=?, retry_count=?, max_retries=?,
				scheduled_at=?, started_at=?, completed_at=?, updated_at=?
			WHERE id = ?`,
			r.SourceID, r.ScheduleID, string(r.Name), string(r.State), nz(r.Input, "{}"), nz(r.Output, "{}"), r.Error,
			r.ProgressCurrent, r.ProgressTotal, r.ProgressMessage, r.RetryCount, r.MaxRetries,
			r.ScheduledAt.Unix(), unixPtr(r.StartedAt), unixPtr(r.CompletedAt), r.UpdatedAt.Unix(), r.ID)
		if err != nil {
			return fperrors.Wrap(err, "failed to update run")
		}
		return mustAffect(res, "run", r.ID)
	})
}

// UpdateRunProgress writes just the progress triple, the hot path C7 calls
// at every batch boundary (spec.md §4.7).
func (s *Store) UpdateRunProgress(ctx context.Context, id string, current, total int, message string) error {
	return s.scope(ctx, "store.UpdateRunProgress", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE runs SET progress_current=?, progress_total=?, progress_message=?, updated_at=?
			WHERE id = ?`, current, total, message, time.Now().Unix(), id)
		if err != nil {
			return fperrors.Wrap(err, "failed to update run progress")
		}
		return mustAffect(res, "run", id)
	})
}

// CancelPendingRun transitions a pending run to cancelled. Returns
// errors.ValidationError if the run is not currently pending, per spec.md
// §5's "cancelling a pending run is allowed" / no-cancel-for-running rule.
func (s *Store) CancelPendingRun(ctx context.Context, id string) error {
	return s.scope(ctx, "store.CancelPendingRun", func(ctx context.Context) error {
		now := time.Now()
		res, err := s.db.ExecContext(ctx, `
			UPDATE runs SET state=?, completed_at=?, progress_message=?, updated_at=?
			WHERE id = ? AND state = ?`,
			string(RunCancelled), now.Unix(), "Cancelled by user", now.Unix(), id, string(RunPending))
		if err != nil {
			return fperrors.Wrap(err, "failed to cancel run")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fperrors.Wrap(err, "failed to get rows affected")
		}
		if n == 0 {
			if _, err := s.GetRun(ctx, id); err != nil {
				return err
			}
			return fperrors.Validation("state", "run is not pending")
		}
		return nil
	})
}

// ClaimPendingRuns atomically claims up to max due pending runs: selects
// them ordered by scheduledAt ascending, then flips each to running with
// startedAt=now, all within one transaction (spec.md §4.1/§5's "the
// claimPendingRuns step is the serializing point").
func (s *Store) ClaimPendingRuns(ctx context.Context, now time.Time, max int) ([]*Run, error) {
	var claimed []*Run
	err := s.scope(ctx, "store.ClaimPendingRuns", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx,
				runSelectCols+` FROM runs WHERE state = ? AND scheduled_at <= ?
				ORDER BY scheduled_at ASC LIMIT ?`, string(RunPending), now.Unix(), max)
			if err != nil {
				return fperrors.Wrap(err, "failed to select pending runs")
			}
			var candidates []*Run
			for rows.Next() {
				r, err := scanRun(rows)
				if err != nil {
					rows.Close()
					return err
				}
				candidates = append(candidates, r)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()

			for _, r := range candidates {
				startedAt := now
				r.State = RunRunning
				r.StartedAt = &startedAt
				r.UpdatedAt = now
				res, err := tx.ExecContext(ctx, `
					UPDATE runs SET state = ?, started_at = ?, updated_at = ?
					WHERE id = ? AND state = ?`,
					string(RunRunning), startedAt.Unix(), now.Unix(), r.ID, string(RunPending))
				if err != nil {
					return fperrors.Wrap(err, "failed to claim run")
				}
				n, err := res.RowsAffected()
				if err != nil {
					return fperrors.Wrap(err, "failed to get rows affected")
				}
				if n == 1 {
					claimed = append(claimed, r)
				}
			}
			return nil
		})
	})
	return claimed, err
}

// FindStaleRunning returns runs with state=running whose startedAt is at or
// before threshold (spec.md §4.1's findStaleRunning).
func (s *Store) FindStaleRunning(ctx context.Context, threshold time.Time) ([]*Run, error) {
	var out []*Run
	err := s.scope(ctx, "store.FindStaleRunning", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			runSelectCols+` FROM runs WHERE state = ? AND started_at <= ?`,
			string(RunRunning), threshold.Unix())
		if err != nil {
			return fperrors.Wrap(err, "failed to find stale running runs")
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRun(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// FindAllRunning returns every run in state=running, used once at process
// startup to reap leftovers (spec.md §4.1's findAllRunning).
func (s *Store) FindAllRunning(ctx context.Context) ([]*Run, error) {
	var out []*Run
	err := s.scope(ctx, "store.FindAllRunning", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, runSelectCols+` FROM runs WHERE state = ?`, string(RunRunning))
		if err != nil {
			return fperrors.Wrap(err, "failed to find all running runs")
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRun(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var name, state string
	var startedAt, completedAt sql.NullInt64
	var scheduledAt, createdAt, updatedAt int64
	err := row.Scan(&r.ID, &r.SourceID, &r.ScheduleID, &name, &state, &r.Input, &r.Output, &r.Error,
		&r.ProgressCurrent, &r.ProgressTotal, &r.ProgressMessage, &r.RetryCount, &r.MaxRetries,
		&scheduledAt, &startedAt, &completedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fperrors.NotFound("run", "")
	}
	if err != nil {
		return nil, fperrors.Wrap(err, "failed to scan run")
	}
	r.Name = RunName(name)
	r.State = RunState(state)
	r.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0).UTC()
		r.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		r.CompletedAt = &t
	}
	return &r, nil
}

func nz(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
