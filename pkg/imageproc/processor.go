package imageproc

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fallpaper/fallpaper/pkg/adapter"
	"github.com/fallpaper/fallpaper/pkg/downloader"
	"github.com/fallpaper/fallpaper/pkg/eligibility"
	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/idgen"
	"github.com/fallpaper/fallpaper/pkg/logging"
	"github.com/fallpaper/fallpaper/pkg/security"
	"github.com/fallpaper/fallpaper/pkg/store"
)

// Candidate is one survivor the Source Runner hands to the processor:
// an upstream item plus the sourceId it came from.
type Candidate struct {
	Item     adapter.Item
	SourceID string
}

// Outcome classifies one candidate's processing result.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// ItemResult is one candidate's per-item detail, accumulated into the
// run's output (spec.md §4.7).
type ItemResult struct {
	DownloadURL string
	Outcome     Outcome
	Reason      string
	ImageID     string
	Err         error
}

// Counts summarizes a batch's outcomes (spec.md §4.6's
// downloadAndProcessImages {processed, downloaded, skipped, failed}).
type Counts struct {
	Processed  int
	Downloaded int
	Skipped    int
	Failed     int
}

// Processor implements C6: format/dimension detection, dedup hash,
// eligibility re-check, staging, and atomic per-device fan-out.
type Processor struct {
	store    *store.Store
	dl       *downloader.Downloader
	log      *logging.Logger
	paths    *security.PathValidator
	imageDir string
	tempDir  string
}

// New builds a Processor rooted at imageDir/tempDir (spec.md §4.2's runner
// group, §6's filesystem layout).
func New(st *store.Store, dl *downloader.Downloader, log *logging.Logger, imageDir, tempDir string) *Processor {
	return &Processor{store: st, dl: dl, log: log, paths: security.NewPathValidator(), imageDir: imageDir, tempDir: tempDir}
}

// DownloadAndProcessImages composes the Downloader and the per-image
// processor: it downloads every candidate concurrently, then processes
// each successfully-downloaded buffer against the eligible device set,
// returning aggregate counts and per-item detail (spec.md §4.6).
func (p *Processor) DownloadAndProcessImages(ctx context.Context, candidates []Candidate, devices []*store.Device) (Counts, []ItemResult) {
	items := make([]downloader.Item, len(candidates))
	for i, c := range candidates {
		items[i] = downloader.Item{URL: c.Item.DownloadURL, Ctx: ctx}
	}
	dlResults := p.dl.DownloadAll(ctx, items)

	var counts Counts
	results := make([]ItemResult, len(candidates))
	for i, c := range candidates {
		counts.Processed++
		results[i] = p.processOne(ctx, c, dlResults[i], devices)
		switch results[i].Outcome {
		case OutcomeDownloaded:
			counts.Downloaded++
		case OutcomeSkipped:
			counts.Skipped++
		case OutcomeFailed:
			counts.Failed++
		}
	}
	return counts, results
}

func (p *Processor) processOne(ctx context.Context, c Candidate, dl downloader.Result, devices []*store.Device) ItemResult {
	res := ItemResult{DownloadURL: c.Item.DownloadURL}

	if !dl.Success {
		if dl.SlowAbort {
			p.log.Warn("download_slow_abort").Str("url", c.Item.DownloadURL).Send()
			res.Outcome = OutcomeSkipped
			res.Reason = "slow-abort"
			return res
		}
		p.log.Warn("download_failed").Str("url", c.Item.DownloadURL).Err(dl.Err).Send()
		res.Outcome = OutcomeFailed
		res.Err = dl.Err
		res.Reason = errString(dl.Err)
		return res
	}

	format := DetectFormat(dl.ContentType, c.Item.DownloadURL, dl.Bytes)
	dims, err := DetectDimensions(format, dl.Bytes)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Reason = err.Error()
		return res
	}

	nsfw := store.NSFWFlagSafe
	if c.Item.NSFW {
		nsfw = store.NSFWFlagExplicit
	}
	meta := eligibility.ImageMeta{
		Width:    dims.Width,
		Height:   dims.Height,
		Filesize: int64(len(dl.Bytes)),
		NSFW:     nsfw,
	}
	eligible := eligibility.FindEligibleDevices(devices, meta)
	if len(eligible) == 0 {
		res.Outcome = OutcomeSkipped
		res.Reason = "no eligible devices"
		return res
	}

	checksum := md5sum(dl.Bytes)
	imageID := idgen.New()

	stagedPath, err := p.stage(dl.Bytes)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Reason = err.Error()
		return res
	}

	devicePaths, err := p.fanOut(imageID, format, stagedPath, eligible)
	if err != nil {
		_ = os.Remove(stagedPath)
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Reason = err.Error()
		return res
	}

	img := &store.Image{
		ID:              imageID,
		SourceID:        &c.SourceID,
		WebsiteURL:      c.Item.WebsiteURL,
		DownloadURL:     c.Item.DownloadURL,
		Checksum:        checksum,
		Width:           dims.Width,
		Height:          dims.Height,
		AspectRatio:     float64(dims.Width) / float64(dims.Height),
		Filesize:        int64(len(dl.Bytes)),
		Format:          format,
		NSFW:            nsfw,
		SourceCreatedAt: timePtr(c.Item.SourceCreatedAt),
	}
	if c.Item.Title != "" {
		img.Title = strPtr(c.Item.Title)
	}
	if c.Item.Author != "" {
		img.Author = strPtr(c.Item.Author)
	}
	if c.Item.AuthorURL != "" {
		img.AuthorURL = strPtr(c.Item.AuthorURL)
	}

	if err := p.store.CreateImageWithDeviceImages(ctx, img, devicePaths); err != nil {
		// The image row and all device rows insert in one transaction
		// (store.CreateImageWithDeviceImages), so a failure here leaves nothing referencing the
		// files just written — retriable on the next run since no Image
		// row with this downloadUrl exists yet.
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Reason = err.Error()
		return res
	}

	res.Outcome = OutcomeDownloaded
	res.ImageID = imageID
	p.log.Info("image_processed").Str("image_id", imageID).Int("eligible_devices", len(eligible)).Send()
	return res
}

// stage writes data to a uniquely-named file in the temp directory
// (spec.md §4.6's staging step).
func (p *Processor) stage(data []byte) (string, error) {
	if err := os.MkdirAll(p.tempDir, 0o755); err != nil {
		return "", fperrors.Wrap(err, "failed to create temp directory")
	}
	path := filepath.Join(p.tempDir, idgen.New()+".tmp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fperrors.Wrap(err, "failed to stage file")
	}
	return path, nil
}

// fanOut moves the staged file into the first eligible device's directory
// (rename) and copies it for every subsequent device (spec.md §4.6/§9's
// "rename-from-temp for the first device and copy for the rest").
func (p *Processor) fanOut(imageID, format, stagedPath string, devices []*store.Device) (map[string]string, error) {
	devicePaths := make(map[string]string, len(devices))
	filename := fmt.Sprintf("%s.%s", imageID, format)

	for i, d := range devices {
		if err := p.paths.ValidateRelative(filepath.Join(d.Slug, filename)); err != nil {
			return nil, fperrors.Wrap(err, "rejected unsafe device path")
		}
		deviceDir := filepath.Join(p.imageDir, d.Slug)
		if err := p.paths.ValidateWithin(p.imageDir, deviceDir); err != nil {
			return nil, fperrors.Wrap(err, "rejected unsafe device path")
		}
		if err := os.MkdirAll(deviceDir, 0o755); err != nil {
			return nil, fperrors.Wrap(err, "failed to create device directory")
		}
		dest := filepath.Join(deviceDir, filename)

		if i == 0 {
			if err := os.Rename(stagedPath, dest); err != nil {
				return nil, fperrors.Wrap(err, "failed to move staged file")
			}
		} else {
			if err := copyFile(devicePaths[devices[0].ID], dest); err != nil {
				return nil, fperrors.Wrap(err, "failed to copy staged file")
			}
		}
		devicePaths[d.ID] = dest
	}
	return devicePaths, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func md5sum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
