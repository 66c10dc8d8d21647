// Package runner implements C7: the Source Runner, which drives one run's
// paged fetch -> eligibility-prune -> download -> process -> progress
// cycle (spec.md §4.7).
package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fallpaper/fallpaper/pkg/adapter"
	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/imageproc"
	"github.com/fallpaper/fallpaper/pkg/logging"
	"github.com/fallpaper/fallpaper/pkg/store"
)

// Outcome is the run-level result C8 maps onto a Run's final state
// (spec.md §4.7's "reports a run-level success boolean").
type Outcome struct {
	Success         bool
	SkipReason      string // non-empty when Success but nothing was fetched
	Error           error
	ImagesFound     int
	ImagesDownloaded int
	ImagesSkipped   int
	ImagesFailed    int
	Output          map[string]any
}

// Runner drives one source's run.
type Runner struct {
	store     *store.Store
	registry  *adapter.Registry
	processor *imageproc.Processor
	log       *logging.Logger
}

// New builds a Runner.
func New(st *store.Store, registry *adapter.Registry, processor *imageproc.Processor, log *logging.Logger) *Runner {
	return &Runner{store: st, registry: registry, processor: processor, log: log}
}

// ProgressFunc is called at every batch boundary with the run's updated
// progress triple (spec.md §4.7).
type ProgressFunc func(current, total int, message string)

// Run executes one fetch cycle for sourceID, per spec.md §4.7's numbered
// steps.
func (r *Runner) Run(ctx context.Context, sourceID string, onProgress ProgressFunc) Outcome {
	src, err := r.store.GetSource(ctx, sourceID)
	if err != nil {
		if fperrors.IsNotFound(err) {
			return Outcome{Success: false, Error: fperrors.NotFound("source", "")}
		}
		return Outcome{Success: false, Error: err}
	}
	if !src.Enabled {
		return Outcome{Success: true, SkipReason: "source disabled"}
	}

	devices, err := r.store.ListEnabledDevicesForSource(ctx, sourceID)
	if err != nil {
		return Outcome{Success: false, Error: err}
	}
	if len(devices) == 0 {
		return Outcome{Success: true, SkipReason: "no eligible devices subscribed"}
	}

	ad, ok := r.registry.Resolve(src.Kind)
	if !ok {
		return Outcome{Success: false, Error: fmt.Errorf("no adapter registered for kind %q", src.Kind)}
	}
	if err := ad.ValidateParams(src.Params); err != nil {
		return Outcome{Success: false, Error: err}
	}

	seq, err := ad.FetchBatches(ctx, src.Params, src.LookupLimit)
	if err != nil {
		return Outcome{Success: false, Error: err}
	}

	var found, downloaded, skipped, failed int
	var allResults []imageproc.ItemResult

	for {
		batch, ok, err := seq.Next(ctx)
		if err != nil {
			r.log.Error("runner_adapter_error").Str("source_id", sourceID).Err(err).Send()
			return Outcome{
				Success: false, Error: err,
				ImagesFound: found, ImagesDownloaded: downloaded,
				ImagesSkipped: skipped, ImagesFailed: failed,
				Output: buildOutput(allResults),
			}
		}
		if !ok {
			break
		}
		found += len(batch.Items)

		urls := make([]string, len(batch.Items))
		for i, it := range batch.Items {
			urls[i] = it.DownloadURL
		}
		existing, err := r.store.ExistingDownloadURLs(ctx, urls)
		if err != nil {
			return Outcome{Success: false, Error: err}
		}

		var survivors []imageproc.Candidate
		for _, it := range batch.Items {
			if existing[it.DownloadURL] {
				skipped++
				continue
			}
			survivors = append(survivors, imageproc.Candidate{Item: it, SourceID: sourceID})
		}

		if len(survivors) > 0 {
			counts, results := r.processor.DownloadAndProcessImages(ctx, survivors, devices)
			downloaded += counts.Downloaded
			skipped += counts.Skipped
			failed += counts.Failed
			allResults = append(allResults, results...)
		}

		if onProgress != nil {
			onProgress(downloaded+skipped+failed, found, fmt.Sprintf("processed %d/%d images", downloaded+skipped+failed, found))
		}
	}

	return Outcome{
		Success:          true,
		ImagesFound:      found,
		ImagesDownloaded: downloaded,
		ImagesSkipped:    skipped,
		ImagesFailed:     failed,
		Output:           buildOutput(allResults),
	}
}

func buildOutput(results []imageproc.ItemResult) map[string]any {
	items := make([]map[string]any, 0, len(results))
	for _, res := range results {
		item := map[string]any{
			"downloadUrl": res.DownloadURL,
			"outcome":     string(res.Outcome),
		}
		if res.Reason != "" {
			item["reason"] = res.Reason
		}
		if res.ImageID != "" {
			item["imageId"] = res.ImageID
		}
		items = append(items, item)
	}
	return map[string]any{"items": items}
}

// MarshalOutput renders an Outcome's Output map as the run's JSON output
// column (spec.md §6's text JSON columns).
func MarshalOutput(out map[string]any) string {
	if out == nil {
		return "{}"
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "{}"
	}
	return string(b)
}
