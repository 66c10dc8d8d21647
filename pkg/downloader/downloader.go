// Package downloader implements C5: bounded-parallel HTTP streaming with a
// per-transfer slow-speed watchdog and cancellation (spec.md §4.5).
// Grounded on the teacher's pkg/storage client for the GET+stream+checksum
// shape, generalized from "download one known key" to "download N
// heterogeneous URLs concurrently, never fail-fast" and enriched with the
// broader pack's resilience stack (errgroup bounded concurrency, a
// per-host circuit breaker).
package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
	"github.com/fallpaper/fallpaper/pkg/logging"
)

// Options configures the downloader per spec.md §4.5 / §4.2's runner group.
type Options struct {
	MaxConcurrent        int
	MinSpeedBytesPerSec  int64
	SlowSpeedTimeoutMs   int
	SpeedCheckIntervalMs int
	RequestTimeoutMs     int
	UserAgent            string
}

// Item is one {url, context} pair handed to downloadAll (spec.md §4.5).
type Item struct {
	URL string
	Ctx context.Context
}

// Result is one item's download outcome.
type Result struct {
	Bytes       []byte
	ContentType string
	Success     bool
	SlowAbort   bool
	Err         error
}

// Downloader is the process-wide bounded-concurrency HTTP streaming client.
type Downloader struct {
	opts     Options
	client   *http.Client
	log      *logging.Logger
	mu       sync.Mutex // guards breakers; DownloadAll calls breakerFor concurrently
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// New builds a Downloader. requestTimeout is applied per-request via
// context, not http.Client.Timeout, so a slow-abort can be distinguished
// from an overall-timeout abort.
func New(opts Options, log *logging.Logger) *Downloader {
	return &Downloader{
		opts:     opts,
		client:   &http.Client{},
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// breakerFor returns (creating if necessary) the per-host circuit breaker,
// so repeated consecutive transport failures against one dead host stop
// consuming download slots mid-run without affecting sibling downloads to
// other hosts (spec.md §5's non-fail-fast guarantee stays scoped per-item;
// this is an orthogonal host-level fuse).
func (d *Downloader) breakerFor(host string) *gobreaker.CircuitBreaker[[]byte] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	d.breakers[host] = cb
	return cb
}

// DownloadAll runs up to maxConcurrent downloads at a time via
// errgroup.SetLimit, returning every item's result in input order. Per
// spec.md §4.5, it is never fail-fast: the group function itself never
// returns an error, so one failing download cannot cancel the rest.
func (d *Downloader) DownloadAll(ctx context.Context, items []Item) []Result {
	results := make([]Result, len(items))

	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(d.opts.MaxConcurrent)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			itemCtx := item.Ctx
			if itemCtx == nil {
				itemCtx = gctx
			}
			results[i] = d.downloadOne(itemCtx, item.URL)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// downloadOne streams a single URL to memory, watchdogging throughput
// every speedCheckIntervalMs and enforcing an overall request timeout.
func (d *Downloader) downloadOne(ctx context.Context, rawURL string) Result {
	reqTimeout := time.Duration(d.opts.RequestTimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, reqTimeout)
	defer cancel()

	host := hostOf(rawURL)
	cb := d.breakerFor(host)

	var contentType string
	buf, err := cb.Execute(func() ([]byte, error) {
		b, ct, err := d.stream(ctx, rawURL)
		contentType = ct
		return b, err
	})

	if err == nil {
		return Result{Bytes: buf, ContentType: contentType, Success: true}
	}
	var se *streamError
	if errors.As(err, &se) && se.slowAbort {
		return Result{SlowAbort: true, Err: err}
	}
	return Result{Err: err}
}

// stream issues the GET and reads the body in chunks, sampling throughput
// every speedCheckIntervalMs (spec.md §4.5). gobreaker only carries the
// []byte return value through Execute, so slow-abort detection piggybacks
// on a typed error the caller inspects with errors.As.
func (d *Downloader) stream(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fperrors.Wrap(err, "failed to build request")
	}
	if d.opts.UserAgent != "" {
		req.Header.Set("User-Agent", d.opts.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", &streamError{err: fperrors.Wrap(err, "request failed")}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &streamError{err: fmt.Errorf("unexpected status: %s", resp.Status)}
	}
	contentType := resp.Header.Get("Content-Type")

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	interval := time.Duration(d.opts.SpeedCheckIntervalMs) * time.Millisecond
	slowTimeout := time.Duration(d.opts.SlowSpeedTimeoutMs) * time.Millisecond

	lastCheck := time.Now()
	bytesAtLastCheck := 0
	var slowStartedAt time.Time

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	readCh := make(chan readResult, 1)
	go d.readLoop(ctx, resp.Body, chunk, readCh)

	for {
		select {
		case <-ctx.Done():
			return nil, "", &streamError{err: ctx.Err()}
		case <-ticker.C:
			now := time.Now()
			elapsed := now.Sub(lastCheck).Seconds()
			if elapsed <= 0 {
				continue
			}
			speed := float64(buf.Len()-bytesAtLastCheck) / elapsed
			bytesAtLastCheck = buf.Len()
			lastCheck = now

			if speed >= float64(d.opts.MinSpeedBytesPerSec) {
				slowStartedAt = time.Time{}
				continue
			}
			if slowStartedAt.IsZero() {
				slowStartedAt = now
				continue
			}
			if now.Sub(slowStartedAt) >= slowTimeout {
				return nil, "", &streamError{err: fmt.Errorf("slow transfer aborted"), slowAbort: true}
			}
		case r, ok := <-readCh:
			if !ok {
				return buf.Bytes(), contentType, nil
			}
			if r.err != nil {
				if r.err == io.EOF {
					return buf.Bytes(), contentType, nil
				}
				return nil, "", &streamError{err: fperrors.Wrap(r.err, "failed to read response body")}
			}
			buf.Write(r.data)
		}
	}
}

type readResult struct {
	data []byte
	err  error
}

// readLoop reads chunks off resp.Body and forwards them on ch, so the
// outer select can interleave reads with the speed-check ticker and ctx
// cancellation without the read itself blocking the watchdog.
func (d *Downloader) readLoop(ctx context.Context, body io.Reader, chunk []byte, ch chan readResult) {
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, chunk[:n])
			select {
			case ch <- readResult{data: cp}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case ch <- readResult{err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// streamError carries the slowAbort distinction through gobreaker's plain
// error return (spec.md §4.5's "distinction between slow-abort and other
// aborts").
type streamError struct {
	err       error
	slowAbort bool
}

func (e *streamError) Error() string { return e.err.Error() }
func (e *streamError) Unwrap() error { return e.err }

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
