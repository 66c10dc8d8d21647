// Package mock implements an in-memory source adapter for tests and the
// happy-path scenario in spec.md §8 — no third-party deps, since it never
// leaves the process.
package mock

import (
	"context"
	"encoding/json"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"

	"github.com/fallpaper/fallpaper/pkg/adapter"
)

// Kind is the stable tag matching Source.kind for this adapter.
const Kind = "mock"

// Params is the opaque Source.params shape this adapter expects: a fixed
// list of items it will page through in order, pageSize at a time.
type Params struct {
	Items    []adapter.Item `json:"items"`
	PageSize int            `json:"pageSize"`
}

// Adapter replays a fixed item list, useful for deterministic tests.
type Adapter struct{}

// New builds a mock Adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Kind() string { return Kind }

func (a *Adapter) ValidateParams(params string) error {
	var p Params
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return fperrors.Validation("params", "mock adapter params must be valid JSON")
	}
	if p.PageSize <= 0 {
		return fperrors.Validation("pageSize", "must be positive")
	}
	return nil
}

func (a *Adapter) FetchBatches(ctx context.Context, params string, limit int) (adapter.BatchSeq, error) {
	var p Params
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return nil, fperrors.Validation("params", "mock adapter params must be valid JSON")
	}
	items := p.Items
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return &seq{items: items, pageSize: p.PageSize}, nil
}

type seq struct {
	items    []adapter.Item
	pageSize int
	offset   int
}

func (s *seq) Next(ctx context.Context) (adapter.Batch, bool, error) {
	if err := ctx.Err(); err != nil {
		return adapter.Batch{}, false, err
	}
	if s.offset >= len(s.items) {
		return adapter.Batch{}, false, nil
	}
	end := s.offset + s.pageSize
	if end > len(s.items) {
		end = len(s.items)
	}
	batch := adapter.Batch{Items: s.items[s.offset:end]}
	s.offset = end
	return batch, true, nil
}
