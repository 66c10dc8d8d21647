// Package s3object implements a Source Adapter over an S3-compatible
// bucket: each "page" of the adapter's fetchBatches contract is one
// ListObjectsV2 page, and each object becomes one candidate item whose
// downloadUrl is a presigned-free public object URL. Grounded on the
// teacher's pkg/storage client (anonymous aws-sdk-go-v2 config, the same
// s3.NewListObjectsV2Paginator) redirected from "fetch one known key" to
// "enumerate and paginate an upstream source" per spec.md §4.4.
package s3object

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"

	"github.com/fallpaper/fallpaper/pkg/adapter"
)

// Kind is the stable tag matching Source.kind for this adapter.
const Kind = "s3"

// Params is the opaque Source.params shape: bucket/region/prefix naming
// the upstream objects, and the public base URL candidates resolve their
// downloadUrl against.
type Params struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	PublicURL string `json:"publicUrl"` // e.g. "https://bucket.s3.amazonaws.com"
}

// Adapter lists objects under Params.Prefix, one ListObjectsV2 page at a
// time, pacing itself at least one second between pages per spec.md §4.4.
type Adapter struct{}

// New builds an s3object Adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Kind() string { return Kind }

func (a *Adapter) ValidateParams(params string) error {
	p, err := parseParams(params)
	if err != nil {
		return err
	}
	if p.Bucket == "" {
		return fperrors.Validation("bucket", "required")
	}
	if p.PublicURL == "" {
		return fperrors.Validation("publicUrl", "required")
	}
	return nil
}

func parseParams(params string) (Params, error) {
	var p Params
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return p, fperrors.Validation("params", "s3 adapter params must be valid JSON")
	}
	return p, nil
}

func (a *Adapter) FetchBatches(ctx context.Context, params string, limit int) (adapter.BatchSeq, error) {
	p, err := parseParams(params)
	if err != nil {
		return nil, err
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(p.Region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fperrors.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(cfg)
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.Bucket),
		Prefix: aws.String(p.Prefix),
	})

	return &seq{
		paginator: paginator,
		publicURL: strings.TrimSuffix(p.PublicURL, "/"),
		limit:     limit,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

type seq struct {
	paginator *s3.ListObjectsV2Paginator
	publicURL string
	limit     int
	yielded   int
	limiter   *rate.Limiter
}

// Next waits for the inter-page rate limit (the limiter starts with one
// token, so the very first page does not wait), fetches one ListObjectsV2 page, and maps it into a Batch. It
// terminates promptly on ctx cancellation per spec.md §4.4, since both
// limiter.Wait and the paginator's NextPage are context-aware.
func (s *seq) Next(ctx context.Context) (adapter.Batch, bool, error) {
	if s.limit > 0 && s.yielded >= s.limit {
		return adapter.Batch{}, false, nil
	}
	if !s.paginator.HasMorePages() {
		return adapter.Batch{}, false, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return adapter.Batch{}, false, err
	}

	page, err := s.paginator.NextPage(ctx)
	if err != nil {
		return adapter.Batch{}, false, fperrors.Wrap(err, "failed to list s3 objects")
	}

	var batch adapter.Batch
	for _, obj := range page.Contents {
		if obj.Key == nil {
			continue
		}
		if s.limit > 0 && s.yielded >= s.limit {
			break
		}
		batch.Items = append(batch.Items, adapter.Item{
			DownloadURL:     fmt.Sprintf("%s/%s", s.publicURL, *obj.Key),
			WebsiteURL:      fmt.Sprintf("%s/%s", s.publicURL, *obj.Key),
			SourceCreatedAt: derefTime(obj.LastModified),
		})
		s.yielded++
	}
	if len(batch.Items) == 0 && !s.paginator.HasMorePages() {
		return adapter.Batch{}, false, nil
	}
	return batch, true, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
