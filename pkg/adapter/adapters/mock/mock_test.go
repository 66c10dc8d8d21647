package mock

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fallpaper/fallpaper/pkg/adapter"
)

func paramsJSON(t *testing.T, p Params) string {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return string(b)
}

func TestValidateParamsRejectsMalformedJSON(t *testing.T) {
	a := New()
	if err := a.ValidateParams("not json"); err == nil {
		t.Error("expected error for malformed params")
	}
}

func TestValidateParamsRejectsNonPositivePageSize(t *testing.T) {
	a := New()
	params := paramsJSON(t, Params{Items: []adapter.Item{{DownloadURL: "x"}}, PageSize: 0})
	if err := a.ValidateParams(params); err == nil {
		t.Error("expected error for zero pageSize")
	}
}

func TestFetchBatchesPaginates(t *testing.T) {
	items := make([]adapter.Item, 5)
	for i := range items {
		items[i] = adapter.Item{DownloadURL: "item"}
	}
	params := paramsJSON(t, Params{Items: items, PageSize: 2})

	a := New()
	seq, err := a.FetchBatches(context.Background(), params, 0)
	if err != nil {
		t.Fatalf("fetch batches: %v", err)
	}

	var total int
	var pages int
	for {
		batch, ok, err := seq.Next(context.Background())
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		pages++
		total += len(batch.Items)
	}

	if total != 5 {
		t.Errorf("expected 5 items total, got %d", total)
	}
	if pages != 3 {
		t.Errorf("expected 3 pages of size 2/2/1, got %d", pages)
	}
}

func TestFetchBatchesRespectsLimit(t *testing.T) {
	items := make([]adapter.Item, 10)
	for i := range items {
		items[i] = adapter.Item{DownloadURL: "item"}
	}
	params := paramsJSON(t, Params{Items: items, PageSize: 4})

	a := New()
	seq, err := a.FetchBatches(context.Background(), params, 3)
	if err != nil {
		t.Fatalf("fetch batches: %v", err)
	}

	var total int
	for {
		batch, ok, err := seq.Next(context.Background())
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		total += len(batch.Items)
	}
	if total != 3 {
		t.Errorf("expected limit to cap total items at 3, got %d", total)
	}
}

func TestFetchBatchesExhaustionThenCleanFalse(t *testing.T) {
	params := paramsJSON(t, Params{Items: nil, PageSize: 1})

	a := New()
	seq, err := a.FetchBatches(context.Background(), params, 0)
	if err != nil {
		t.Fatalf("fetch batches: %v", err)
	}

	_, ok, err := seq.Next(context.Background())
	if ok || err != nil {
		t.Errorf("expected immediate clean exhaustion, got ok=%v err=%v", ok, err)
	}
}

func TestFetchBatchesCancelledContext(t *testing.T) {
	params := paramsJSON(t, Params{Items: []adapter.Item{{DownloadURL: "x"}}, PageSize: 1})

	a := New()
	seq, err := a.FetchBatches(context.Background(), params, 0)
	if err != nil {
		t.Fatalf("fetch batches: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := seq.Next(ctx)
	if ok || err == nil {
		t.Errorf("expected cancelled context to fail Next, got ok=%v err=%v", ok, err)
	}
}
