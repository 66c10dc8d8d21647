package store

import (
	"context"
	"database/sql"
	"time"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/idgen"
)

// CreateDevice inserts a new device row. Id is generated if empty.
// Uniqueness on slug is translated into a errors.UniquenessError.
func (s *Store) CreateDevice(ctx context.Context, d *Device) error {
	return s.scope(ctx, "store.CreateDevice", func(ctx context.Context) error {
		if d.ID == "" {
			d.ID = idgen.New()
		}
		now := time.Now()
		d.CreatedAt, d.UpdatedAt = now, now

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO devices (id, enabled, display_name, slug, native_width, native_height,
				aspect_tolerance, min_width, max_width, min_height, max_height,
				min_filesize, max_filesize, nsfw_policy, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, boolToInt(d.Enabled), d.DisplayName, d.Slug, d.NativeWidth, d.NativeHeight,
			d.AspectTolerance, d.MinWidth, d.MaxWidth, d.MinHeight, d.MaxHeight,
			d.MinFilesize, d.MaxFilesize, int(d.NSFWPolicy), now.Unix(), now.Unix())
		if err != nil {
			return translateUniqueness(err, "device", "slug")
		}
		return nil
	})
}

// GetDevice fetches a device by id. Returns errors.NotFoundError when absent.
func (s *Store) GetDevice(ctx context.Context, id string) (*Device, error) {
	var d *Device
	err := s.scope(ctx, "store.GetDevice", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, deviceSelectCols+" FROM devices WHERE id = ?", id)
		var err error
		d, err = scanDevice(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDevices returns every device, most recently created first.
func (s *Store) ListDevices(ctx context.Context) ([]*Device, error) {
	var out []*Device
	err := s.scope(ctx, "store.ListDevices", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, deviceSelectCols+" FROM devices ORDER BY created_at DESC")
		if err != nil {
			return fperrors.Wrap(err, "failed to list devices")
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDevice(rows)
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}

// ListEnabledDevicesForSource returns the enabled devices with an enabled
// subscription to sourceId, used by the Source Runner's "no eligible
// devices subscribed" short-circuit (spec.md §4.7).
func (s *Store) ListEnabledDevicesForSource(ctx context.Context, sourceID string) ([]*Device, error) {
	var out []*Device
	err := s.scope(ctx, "store.ListEnabledDevicesForSource", func(ctx context.Context) error {
		// Columns are qualified: subscriptions also has an enabled column.
		rows, err := s.db.QueryContext(ctx, `SELECT d.id, d.enabled, d.display_name, d.slug,
				d.native_width, d.native_height, d.aspect_tolerance, d.min_width, d.max_width,
				d.min_height, d.max_height, d.min_filesize, d.max_filesize, d.nsfw_policy,
				d.created_at, d.updated_at
			FROM devices d
			JOIN subscriptions sub ON sub.device_id = d.id
			WHERE sub.source_id = ? AND sub.enabled = 1 AND d.enabled = 1`, sourceID)
		if err != nil {
			return fperrors.Wrap(err, "failed to list subscribed devices")
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDevice(rows)
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}

// UpdateDevice overwrites every mutable field of an existing device row.
func (s *Store) UpdateDevice(ctx context.Context, d *Device) error {
	return s.scope(ctx, "store.UpdateDevice", func(ctx context.Context) error {
		d.UpdatedAt = time.Now()
		res, err := s.db.ExecContext(ctx, `
			UPDATE devices SET enabled=?, display_name=?, slug=?, native_width=?, native_height=?,
				aspect_tolerance=?, min_width=?, max_width=?, min_height=?, max_height=?,
				min_filesize=?, max_filesize=?, nsfw_policy=?, updated_at=?
			WHERE id = ?`,
			boolToInt(d.Enabled), d.DisplayName, d.Slug, d.NativeWidth, d.NativeHeight,
			d.AspectTolerance, d.MinWidth, d.MaxWidth, d.MinHeight, d.MaxHeight,
			d.MinFilesize, d.MaxFilesize, int(d.NSFWPolicy), d.UpdatedAt.Unix(), d.ID)
		if err != nil {
			return translateUniqueness(err, "device", "slug")
		}
		return mustAffect(res, "device", d.ID)
	})
}

// DeleteDevice removes a device row. Subscriptions cascade-delete;
// DeviceImage rows referencing it are set-null (schema.go FKs) per
// spec.md §3's Device lifecycle.
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	return s.scope(ctx, "store.DeleteDevice", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
		if err != nil {
			return fperrors.Wrap(err, "failed to delete device")
		}
		return mustAffect(res, "device", id)
	})
}

const deviceSelectCols = `SELECT id, enabled, display_name, slug, native_width, native_height,
	aspect_tolerance, min_width, max_width, min_height, max_height,
	min_filesize, max_filesize, nsfw_policy, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var enabled int
	var createdAt, updatedAt int64
	var nsfwPolicy int
	err := row.Scan(&d.ID, &enabled, &d.DisplayName, &d.Slug, &d.NativeWidth, &d.NativeHeight,
		&d.AspectTolerance, &d.MinWidth, &d.MaxWidth, &d.MinHeight, &d.MaxHeight,
		&d.MinFilesize, &d.MaxFilesize, &nsfwPolicy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fperrors.NotFound("device", "")
	}
	if err != nil {
		return nil, fperrors.Wrap(err, "failed to scan device")
	}
	d.Enabled = enabled != 0
	d.NSFWPolicy = NSFWPolicy(nsfwPolicy)
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mustAffect(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fperrors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return fperrors.NotFound(resource, id)
	}
	return nil
}
