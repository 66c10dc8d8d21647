package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/idgen"
)

const imageSelectCols = `SELECT id, source_id, website_url, download_url, checksum, width, height,
	aspect_ratio, filesize, format, nsfw, title, author, author_url, source_created_at,
	created_at, updated_at`

// CreateImage inserts a new image row. Uniqueness on download_url is
// translated into a errors.UniquenessError.
func (s *Store) CreateImage(ctx context.Context, img *Image) error {
	return s.scope(ctx, "store.CreateImage", func(ctx context.Context) error {
		if img.ID == "" {
			img.ID = idgen.New()
		}
		now := time.Now()
		img.CreatedAt, img.UpdatedAt = now, now
		_, err := s.db.ExecContext(ctx, `
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
		return nil
	})
}

// GetImage fetches an image by id.
func (s *Store) GetImage(ctx context.Context, id string) (*Image, error) {
	var img *Image
	err := s.scope(ctx, "store.GetImage", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, imageSelectCols+" FROM images WHERE id = ?", id)
		var err error
		img, err = scanImage(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ExistingDownloadURLs returns the subset of urls already present in the
// images table, used by the Source Runner's per-batch dedup (spec.md
// §4.7's "subtract already-persisted images by downloadUrl (one indexed
// query per batch)").
func (s *Store) ExistingDownloadURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	out := make(map[string]bool, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	err := s.scope(ctx, "store.ExistingDownloadURLs", func(ctx context.Context) error {
		placeholders := make([]byte, 0, len(urls)*2)
		args := make([]any, len(urls))
		for i, u := range urls {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = u
		}
		query := fmt.Sprintf("SELECT download_url FROM images WHERE download_url IN (%s)", placeholders)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fperrors.Wrap(err, "failed to query existing download urls")
		}
		defer rows.Close()
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				return fperrors.Wrap(err, "failed to scan download url")
			}
			out[u] = true
		}
		return rows.Err()
	})
	return out, err
}

// CountImages returns the total image row count, for the admin surface's
// gallery totals.
func (s *Store) CountImages(ctx context.Context) (int, error) {
	var n int
	err := s.scope(ctx, "store.CountImages", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images").Scan(&n)
	})
	return n, err
}

// ImagePage is one cursor-paginated slice of images plus the cursor to
// request the next page, per spec.md §6's "page recent images by
// (createdAt DESC, id DESC) with cursor = {epochMillis}_{id}".
type ImagePage struct {
	Images     []*Image
	NextCursor string // empty when exhausted
}

// ListImagesPage returns up to limit images ordered by (createdAt DESC, id
// DESC), starting strictly after cursor ("" for the first page).
func (s *Store) ListImagesPage(ctx context.Context, cursor string, limit int) (*ImagePage, error) {
	var page ImagePage
	err := s.scope(ctx, "store.ListImagesPage", func(ctx context.Context) error {
		var rows *sql.Rows
		var err error
		if cursor == "" {
			rows, err = s.db.QueryContext(ctx,
				imageSelectCols+" FROM images ORDER BY created_at DESC, id DESC LIMIT ?", limit+1)
		} else {
			ts, id, perr := parseCursor(cursor)
			if perr != nil {
				return fperrors.Validation("cursor", "malformed cursor")
			}
			rows, err = s.db.QueryContext(ctx, imageSelectCols+`
				FROM images
				WHERE created_at < ? OR (created_at = ? AND id < ?)
				ORDER BY created_at DESC, id DESC LIMIT ?`, ts, ts, id, limit+1)
		}
		if err != nil {
			return fperrors.Wrap(err, "failed to list images page")
		}
		defer rows.Close()
		for rows.Next() {
			img, err := scanImage(rows)
			if err != nil {
				return err
			}
			page.Images = append(page.Images, img)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(page.Images) > limit {
			last := page.Images[limit-1]
			page.NextCursor = fmt.Sprintf("%d_%s", last.CreatedAt.UnixMilli(), last.ID)
			page.Images = page.Images[:limit]
		}
		return nil
	})
	return &page, err
}

func parseCursor(cursor string) (int64, string, error) {
	var ms int64
	var id string
	n, err := fmt.Sscanf(cursor, "%d_%s", &ms, &id)
	if err != nil || n != 2 {
		return 0, "", fmt.Errorf("invalid cursor %q", cursor)
	}
	return ms / 1000, id, nil
}

func scanImage(row rowScanner) (*Image, error) {
	var img Image
	var nsfw int
	var sourceCreatedAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&img.ID, &img.SourceID, &img.WebsiteURL, &img.DownloadURL, &img.Checksum,
		&img.Width, &img.Height, &img.AspectRatio, &img.Filesize, &img.Format, &nsfw,
		&img.Title, &img.Author, &img.AuthorURL, &sourceCreatedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fperrors.NotFound("image", "")
	}
	if err != nil {
		return nil, fperrors.Wrap(err, "failed to scan image")
	}
	img.NSFW = NSFWFlag(nsfw)
	img.CreatedAt = time.Unix(createdAt, 0).UTC()
	img.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if sourceCreatedAt.Valid {
		t := time.Unix(sourceCreatedAt.Int64, 0).UTC()
		img.SourceCreatedAt = &t
	}
	return &img, nil
}
