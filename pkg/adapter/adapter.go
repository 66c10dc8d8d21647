// Package adapter defines the Source Adapter contract (C4, spec.md §4.4):
// a small capability set dispatched by a registry keyed on Source.kind,
// per the "tagged variants with a dispatch table" guidance in spec.md §9.
package adapter

import (
	"context"
	"time"
)

// Item is one normalized candidate an adapter yields.
type Item struct {
	DownloadURL     string
	WebsiteURL      string
	Title           string
	Author          string
	AuthorURL       string
	NSFW            bool
	SourceCreatedAt time.Time
	Width           int // 0 when unknown
	Height          int // 0 when unknown
}

// Batch is one page's worth of candidate items (spec.md §4.4, "up to ~100
// normalized candidate items").
type Batch struct {
	Items []Item
}

// BatchSeq is the lazy, finite, cancellation-aware sequence fetchBatches
// returns. It is non-restartable: calling Next after it returns
// ok=false, or after ctx is cancelled, is undefined beyond returning
// ok=false again.
type BatchSeq interface {
	// Next blocks (subject to ctx) until the next batch is ready, the
	// sequence is exhausted, or ctx is cancelled. ok=false with err=nil
	// means clean exhaustion; ok=false with err!=nil means adapter error.
	Next(ctx context.Context) (batch Batch, ok bool, err error)
}

// Adapter is the per-kind capability set spec.md §4.4 names.
type Adapter interface {
	// Kind returns the stable tag matching Source.kind.
	Kind() string
	// ValidateParams reports a validation error for malformed params, or
	// nil if params validate against this adapter's schema.
	ValidateParams(params string) error
	// FetchBatches returns a lazy, paced, cancellation-aware sequence over
	// up to limit upstream items. The adapter owns pagination, inter-page
	// rate limiting, and dedup across pages it emits; it never writes to
	// the store.
	FetchBatches(ctx context.Context, params string, limit int) (BatchSeq, error)
}

// Registry resolves a Source.kind to its registered Adapter, populated at
// startup per spec.md §9 ("a registry populated at startup").
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own Kind(). Registering the same kind
// twice panics: this is a startup-time wiring bug, not a runtime error.
func (r *Registry) Register(a Adapter) {
	k := a.Kind()
	if _, exists := r.adapters[k]; exists {
		panic("adapter: duplicate kind registered: " + k)
	}
	r.adapters[k] = a
}

// Resolve returns the adapter for kind, or nil, false if unregistered.
func (r *Registry) Resolve(kind string) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}
