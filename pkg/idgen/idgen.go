// Package idgen generates the time-ordered unique identifiers spec.md's
// data model calls for (Device, Source, Schedule, Run, Image, DeviceImage
// ids). ULIDs are lexically sortable by creation time and collision-free
// without a central sequence, which is exactly what a relational store with
// no auto-increment authority beyond SQLite's own rowid needs for ids that
// must also sort chronologically for the gallery cursor (spec.md §6).
package idgen

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID seeded from the current wall clock.
func New() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Millis returns the creation-time component of an id generated by New, in
// epoch milliseconds. Used to build the "{epochMillis}_{id}" gallery cursor.
func Millis(id string) (int64, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return 0, err
	}
	return int64(parsed.Time()), nil
}
