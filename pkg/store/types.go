package store

import "time"

// NSFWPolicy is a device's acceptance policy for NSFW-flagged images.
// Deliberately a distinct type from image NSFW-ness (the images table's
// nsfw column) per spec.md §9's Open Question: the two 0/1/2 value spaces are
// semantically unrelated and must not unify.
type NSFWPolicy int

const (
	NSFWAcceptAll   NSFWPolicy = 0
	NSFWReject      NSFWPolicy = 1
	NSFWRequire     NSFWPolicy = 2
)

// NSFWFlag is an image's own NSFW classification, as reported by the
// source adapter. See NSFWPolicy's doc comment for why this is a separate
// type from the device policy despite sharing small-int encoding.
type NSFWFlag int

const (
	NSFWFlagUnknown NSFWFlag = 0
	NSFWFlagSafe    NSFWFlag = 1
	NSFWFlagExplicit NSFWFlag = 2
)

// RunState is one of the five states in the DAG spec.md §3 defines:
// pending -> running -> {completed|failed}, with pending -> cancelled.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// RunName is the closed set of job kinds a Run can carry (spec.md §3).
type RunName string

const RunNameFetchSource RunName = "fetch_source"

// Device is a consumer profile images are filtered and fanned out to
// (spec.md §3).
type Device struct {
	ID              string
	Enabled         bool
	DisplayName     string
	Slug            string
	NativeWidth     int
	NativeHeight    int
	AspectTolerance float64
	MinWidth        *int
	MaxWidth        *int
	MinHeight       *int
	MaxHeight       *int
	MinFilesize     *int64
	MaxFilesize     *int64
	NSFWPolicy      NSFWPolicy
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Source is an upstream configuration (spec.md §3).
type Source struct {
	ID          string
	Enabled     bool
	Name        string
	Kind        string
	Params      string // opaque JSON, shape defined by the adapter kind
	LookupLimit int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Schedule is a cron binding that materializes pending Runs (spec.md §3).
type Schedule struct {
	ID        string
	SourceID  string
	CronExpr  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription is a device<->source association (spec.md §3).
type Subscription struct {
	DeviceID string
	SourceID string
	Enabled  bool
}

// Run is one execution attempt (spec.md §3).
type Run struct {
	ID              string
	SourceID        *string
	ScheduleID      *string
	Name            RunName
	State           RunState
	Input           string // JSON
	Output          string // JSON
	Error           string
	ProgressCurrent int
	ProgressTotal   int
	ProgressMessage string
	RetryCount      int
	MaxRetries      int
	ScheduledAt     time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Image is the canonical record of a discovered asset (spec.md §3).
type Image struct {
	ID              string
	SourceID        *string
	WebsiteURL      string
	DownloadURL     string
	Checksum        string
	Width           int
	Height          int
	AspectRatio     float64
	Filesize        int64
	Format          string
	NSFW            NSFWFlag
	Title           *string
	Author          *string
	AuthorURL       *string
	SourceCreatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DeviceImage is one materialization of an Image onto one Device
// (spec.md §3).
type DeviceImage struct {
	ID        string
	DeviceID  *string
	ImageID   *string
	LocalPath string
	CreatedAt time.Time
}
