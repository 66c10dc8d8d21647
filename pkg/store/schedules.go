package store

import (
	"database/sql"
	"context"
	"time"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/idgen"
)

const scheduleSelectCols = `SELECT id, source_id, cron_expr, created_at, updated_at`

// CreateSchedule inserts a new schedule row.
func (s *Store) CreateSchedule(ctx context.Context, sch *Schedule) error {
	return s.scope(ctx, "store.CreateSchedule", func(ctx context.Context) error {
		if sch.ID == "" {
			sch.ID = idgen.New()
		}
		now := time.Now()
		sch.CreatedAt, sch.UpdatedAt = now, now
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO schedules (id, source_id, cron_expr, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			sch.ID, sch.SourceID, sch.CronExpr, now.Unix(), now.Unix())
		if err != nil {
			return fperrors.Wrap(err, "failed to insert schedule")
		}
		return nil
	})
}

// GetSchedule fetches a schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	var sch *Schedule
	err := s.scope(ctx, "store.GetSchedule", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, scheduleSelectCols+" FROM schedules WHERE id = ?", id)
		var err error
		sch, err = scanSchedule(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sch, nil
}

// ListSchedules returns every schedule.
func (s *Store) ListSchedules(ctx context.Context) ([]*Schedule, error) {
	var out []*Schedule
	err := s.scope(ctx, "store.ListSchedules", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, scheduleSelectCols+" FROM schedules ORDER BY created_at DESC")
		if err != nil {
			return fperrors.Wrap(err, "failed to list schedules")
		}
		defer rows.Close()
		for rows.Next() {
			sch, err := scanSchedule(rows)
			if err != nil {
				return err
			}
			out = append(out, sch)
		}
		return rows.Err()
	})
	return out, err
}

// ScheduleWithSource pairs a schedule with its joined source row, as
// loadSchedules (spec.md §4.9) needs to decide whether the source is
// still enabled before arming a timer.
type ScheduleWithSource struct {
	Schedule *Schedule
	Source   *Source
}

// ListSchedulesWithSource performs the single store read loadSchedules
// issues: every schedule joined with its source.
func (s *Store) ListSchedulesWithSource(ctx context.Context) ([]ScheduleWithSource, error) {
	var out []ScheduleWithSource
	err := s.scope(ctx, "store.ListSchedulesWithSource", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT sch.id, sch.source_id, sch.cron_expr, sch.created_at, sch.updated_at,
			       src.id, src.enabled, src.name, src.kind, src.params, src.lookup_limit,
			       src.created_at, src.updated_at
			FROM schedules sch
			JOIN sources src ON src.id = sch.source_id`)
		if err != nil {
			return fperrors.Wrap(err, "failed to list schedules with source")
		}
		defer rows.Close()
		for rows.Next() {
			var sch Schedule
			var src Source
			var schCreatedAt, schUpdatedAt, srcCreatedAt, srcUpdatedAt int64
			var srcEnabled int
			if err := rows.Scan(&sch.ID, &sch.SourceID, &sch.CronExpr, &schCreatedAt, &schUpdatedAt,
				&src.ID, &srcEnabled, &src.Name, &src.Kind, &src.Params, &src.LookupLimit,
				&srcCreatedAt, &srcUpdatedAt); err != nil {
				return fperrors.Wrap(err, "failed to scan schedule+source row")
			}
			sch.CreatedAt, sch.UpdatedAt = time.Unix(schCreatedAt, 0).UTC(), time.Unix(schUpdatedAt, 0).UTC()
			src.Enabled = srcEnabled != 0
			src.CreatedAt, src.UpdatedAt = time.Unix(srcCreatedAt, 0).UTC(), time.Unix(srcUpdatedAt, 0).UTC()
			out = append(out, ScheduleWithSource{Schedule: &sch, Source: &src})
		}
		return rows.Err()
	})
	return out, err
}

// UpdateSchedule overwrites the mutable fields of an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, sch *Schedule) error {
	return s.scope(ctx, "store.UpdateSchedule", func(ctx context.Context) error {
		sch.UpdatedAt = time.Now()
		res, err := s.db.ExecContext(ctx, `
			UPDATE schedules SET source_id=?, cron_expr=?, updated_at=? WHERE id = ?`,
			sch.SourceID, sch.CronExpr, sch.UpdatedAt.Unix(), sch.ID)
		if err != nil {
			return fperrors.Wrap(err, "failed to update schedule")
		}
		return mustAffect(res, "schedule", sch.ID)
	})
}

// DeleteSchedule removes a schedule row.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	return s.scope(ctx, "store.DeleteSchedule", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
		if err != nil {
			return fperrors.Wrap(err, "failed to delete schedule")
		}
		return mustAffect(res, "schedule", id)
	})
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var sch Schedule
	var createdAt, updatedAt int64
	err := row.Scan(&sch.ID, &sch.SourceID, &sch.CronExpr, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fperrors.NotFound("schedule", "")
	}
	if err != nil {
		return nil, fperrors.Wrap(err, "failed to scan schedule")
	}
	sch.CreatedAt = time.Unix(createdAt, 0).UTC()
	sch.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sch, nil
}
