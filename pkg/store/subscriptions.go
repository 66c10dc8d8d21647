package store

import (
	"context"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
)

// UpsertSubscription creates or updates the (deviceId, sourceId)
// subscription row, per spec.md §3's composite-key Subscription entity.
func (s *Store) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	return s.scope(ctx, "store.UpsertSubscription", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO subscriptions (device_id, source_id, enabled) VALUES (?, ?, ?)
			ON CONFLICT(device_id, source_id) DO UPDATE SET enabled = excluded.enabled`,
			sub.DeviceID, sub.SourceID, boolToInt(sub.Enabled))
		if err != nil {
			return fperrors.Wrap(err, "failed to upsert subscription")
		}
		return nil
	})
}

// ListSubscriptionsForSource returns every subscription row for a source,
// enabled or not, with Enabled set on each row.
func (s *Store) ListSubscriptionsForSource(ctx context.Context, sourceID string) ([]*Subscription, error) {
	var out []*Subscription
	err := s.scope(ctx, "store.ListSubscriptionsForSource", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT device_id, source_id, enabled FROM subscriptions WHERE source_id = ?", sourceID)
		if err != nil {
			return fperrors.Wrap(err, "failed to list subscriptions")
		}
		defer rows.Close()
		for rows.Next() {
			var sub Subscription
			var enabled int
			if err := rows.Scan(&sub.DeviceID, &sub.SourceID, &enabled); err != nil {
				return fperrors.Wrap(err, "failed to scan subscription")
			}
			sub.Enabled = enabled != 0
			out = append(out, &sub)
		}
		return rows.Err()
	})
	return out, err
}

// DeleteSubscription removes one (deviceId, sourceId) subscription row.
func (s *Store) DeleteSubscription(ctx context.Context, deviceID, sourceID string) error {
	return s.scope(ctx, "store.DeleteSubscription", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM subscriptions WHERE device_id = ? AND source_id = ?", deviceID, sourceID)
		if err != nil {
			return fperrors.Wrap(err, "failed to delete subscription")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fperrors.Wrap(err, "failed to get rows affected")
		}
		if n == 0 {
			return fperrors.NotFound("subscription", deviceID+"/"+sourceID)
		}
		return nil
	})
}
