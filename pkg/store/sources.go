package store

import (
	"database/sql"
	"context"
	"time"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/idgen"
)

const sourceSelectCols = `SELECT id, enabled, name, kind, params, lookup_limit, created_at, updated_at`

// CreateSource inserts a new source row.
func (s *Store) CreateSource(ctx context.Context, src *Source) error {
	return s.scope(ctx, "store.CreateSource", func(ctx context.Context) error {
		if src.ID == "" {
			src.ID = idgen.New()
		}
		now := time.Now()
		src.CreatedAt, src.UpdatedAt = now, now
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sources (id, enabled, name, kind, params, lookup_limit, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			src.ID, boolToInt(src.Enabled), src.Name, src.Kind, src.Params, src.LookupLimit,
			now.Unix(), now.Unix())
		if err != nil {
			return translateUniqueness(err, "source", "name")
		}
		return nil
	})
}

// GetSource fetches a source by id.
func (s *Store) GetSource(ctx context.Context, id string) (*Source, error) {
	var src *Source
	err := s.scope(ctx, "store.GetSource", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, sourceSelectCols+" FROM sources WHERE id = ?", id)
		var err error
		src, err = scanSource(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ListSources returns every source.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	var out []*Source
	err := s.scope(ctx, "store.ListSources", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, sourceSelectCols+" FROM sources ORDER BY created_at DESC")
		if err != nil {
			return fperrors.Wrap(err, "failed to list sources")
		}
		defer rows.Close()
		for rows.Next() {
			src, err := scanSource(rows)
			if err != nil {
				return err
			}
			out = append(out, src)
		}
		return rows.Err()
	})
	return out, err
}

// ListEnabledSources returns every enabled source. The scheduler does not
// use it; it loads schedules through ListSchedulesWithSource.
func (s *Store) ListEnabledSources(ctx context.Context) ([]*Source, error) {
	var out []*Source
	err := s.scope(ctx, "store.ListEnabledSources", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, sourceSelectCols+" FROM sources WHERE enabled = 1")
		if err != nil {
			return fperrors.Wrap(err, "failed to list enabled sources")
		}
		defer rows.Close()
		for rows.Next() {
			src, err := scanSource(rows)
			if err != nil {
				return err
			}
			out = append(out, src)
		}
		return rows.Err()
	})
	return out, err
}

// UpdateSource overwrites every mutable field of an existing source row.
func (s *Store) UpdateSource(ctx context.Context, src *Source) error {
	return s.scope(ctx, "store.UpdateSource", func(ctx context.Context) error {
		src.UpdatedAt = time.Now()
		res, err := s.db.ExecContext(ctx, `
			UPDATE sources SET enabled=?, name=?, kind=?, params=?, lookup_limit=?, updated_at=?
			WHERE id = ?`,
			boolToInt(src.Enabled), src.Name, src.Kind, src.Params, src.LookupLimit,
			src.UpdatedAt.Unix(), src.ID)
		if err != nil {
			return translateUniqueness(err, "source", "name")
		}
		return mustAffect(res, "source", src.ID)
	})
}

// DeleteSource removes a source row; schedules cascade-delete, images
// cascade-delete, subscriptions cascade-delete (schema.go FKs).
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	return s.scope(ctx, "store.DeleteSource", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
		if err != nil {
			return fperrors.Wrap(err, "failed to delete source")
		}
		return mustAffect(res, "source", id)
	})
}

func scanSource(row rowScanner) (*Source, error) {
	var src Source
	var enabled int
	var createdAt, updatedAt int64
	err := row.Scan(&src.ID, &enabled, &src.Name, &src.Kind, &src.Params, &src.LookupLimit,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fperrors.NotFound("source", "")
	}
	if err != nil {
		return nil, fperrors.Wrap(err, "failed to scan source")
	}
	src.Enabled = enabled != 0
	src.CreatedAt = time.Unix(createdAt, 0).UTC()
	src.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &src, nil
}
