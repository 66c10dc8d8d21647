package store

import (
	"context"
	"database/sql"
	"time"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/idgen"
)

const deviceImageSelectCols = `SELECT id, device_id, image_id, local_path, created_at`

// CreateDeviceImage inserts one materialization row. Unique on
// (deviceId, imageId) per spec.md §3.
func (s *Store) CreateDeviceImage(ctx context.Context, di *DeviceImage) error {
	return s.scope(ctx, "store.CreateDeviceImage", func(ctx context.Context) error {
		if di.ID == "" {
			di.ID = idgen.New()
		}
		di.CreatedAt = time.Now()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO device_images (id, device_id, image_id, local_path, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			di.ID, di.DeviceID, di.ImageID, di.LocalPath, di.CreatedAt.Unix())
		if err != nil {
			return translateUniqueness(err, "deviceImage", "deviceId+imageId")
		}
		return nil
	})
}

// CreateImageWithDeviceImages inserts the Image row and every DeviceImage
// row in a single transaction, so the store never exposes a half-written
// fan-out: either the Image row lands with all of devicePaths materialized,
// or nothing lands at all. The image processor (C6) calls this only after
// every file has already been written to its device directory on disk
// (spec.md §4.6's rename-first-device/copy-rest), so a rollback here never
// leaves an orphaned file referenced by a row — it leaves an orphaned file
// referenced by nothing, which nothing in this package removes.
func (s *Store) CreateImageWithDeviceImages(ctx context.Context, img *Image, devicePaths map[string]string) error {
	return s.scope(ctx, "store.CreateImageWithDeviceImages", func(ctx context.Context) error {
		if img.ID == "" {
			img.ID = idgen.New()
		}
		now := time.Now()
		img.CreatedAt, img.UpdatedAt = now, now

		return s.withTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO images (id, source_id, website_url, download_url, checksum, width, height,
					aspect_ratio, filesize, format, nsfw, title, author, author_url, source_created_at,
					created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				img.ID, img.SourceID, img.WebsiteURL, img.DownloadURL, img.Checksum, img.Width, img.Height,
				img.AspectRatio, img.Filesize, img.Format, int(img.NSFW), img.Title, img.Author, img.AuthorURL,
				unixPtr(img.SourceCreatedAt), now.Unix(), now.Unix())
			if err != nil {
				return translateUniqueness(err, "image", "downloadUrl")
			}

			for deviceID, localPath := range devicePaths {
				diID := idgen.New()
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO device_images (id, device_id, image_id, local_path, created_at)
					VALUES (?, ?, ?, ?, ?)`, diID, deviceID, img.ID, localPath, now.Unix()); err != nil {
					return translateUniqueness(err, "deviceImage", "deviceId+imageId")
				}
			}
			return nil
		})
	})
}

// ListDeviceImagesForImage returns every materialization of a given image
// (one row per device it was written to).
func (s *Store) ListDeviceImagesForImage(ctx context.Context, imageID string) ([]*DeviceImage, error) {
	var out []*DeviceImage
	err := s.scope(ctx, "store.ListDeviceImagesForImage", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			deviceImageSelectCols+" FROM device_images WHERE image_id = ?", imageID)
		if err != nil {
			return fperrors.Wrap(err, "failed to list device images")
		}
		defer rows.Close()
		for rows.Next() {
			di, err := scanDeviceImage(rows)
			if err != nil {
				return err
			}
			out = append(out, di)
		}
		return rows.Err()
	})
	return out, err
}

// CountDeviceImagesForImage reports how many device materializations an
// image currently has; the store tests use it to check the transactional
// fan-out of CreateImageWithDeviceImages.
func (s *Store) CountDeviceImagesForImage(ctx context.Context, imageID string) (int, error) {
	var n int
	err := s.scope(ctx, "store.CountDeviceImagesForImage", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM device_images WHERE image_id = ?", imageID).Scan(&n)
	})
	return n, err
}

// DeleteDeviceImage removes one materialization row.
func (s *Store) DeleteDeviceImage(ctx context.Context, id string) error {
	return s.scope(ctx, "store.DeleteDeviceImage", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM device_images WHERE id = ?", id)
		if err != nil {
			return fperrors.Wrap(err, "failed to delete device image")
		}
		return mustAffect(res, "deviceImage", id)
	})
}

// DeleteImage removes an image row (retention only, per spec.md §3's
// lifecycle note); device_images referencing it are set-null.
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	return s.scope(ctx, "store.DeleteImage", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE id = ?", id)
		if err != nil {
			return fperrors.Wrap(err, "failed to delete image")
		}
		return mustAffect(res, "image", id)
	})
}

func scanDeviceImage(row rowScanner) (*DeviceImage, error) {
	var di DeviceImage
	var createdAt int64
	err := row.Scan(&di.ID, &di.DeviceID, &di.ImageID, &di.LocalPath, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fperrors.NotFound("deviceImage", "")
	}
	if err != nil {
		return nil, fperrors.Wrap(err, "failed to scan device image")
	}
	di.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &di, nil
}
