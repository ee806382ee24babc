package ports

import (
	"context"

	"github.com/DJune12138/Collection3/internal/domain"
)

// Callbacks maps a callback name to a callable. Accepted shapes are checked at
// invocation time, see plugin.InvokeResponse and plugin.InvokeItem.
type Callbacks map[string]any

// SeedFunc produces the requests of one lifecycle phase.
type SeedFunc func(ctx context.Context) domain.Stream

// Builder seeds requests and parses responses into further requests or items.
type Builder interface {
	Name() string
	StartRequests(ctx context.Context) domain.Stream
	Callbacks() Callbacks
	// DownloaderErrorCallback may return a replacement request to keep the
	// lineage alive; returning an error re-raises the failure.
	DownloaderErrorCallback(ctx context.Context, err error, req *domain.Request) (*domain.Request, error)
}

// EndRequester is implemented by builders that take part in later phases.
// Entry i is the seed of phase i+1; a nil entry means the phase is not implemented.
type EndRequester interface {
	EndRequests() []SeedFunc
}

// AutoCollector replaces StartRequests in phase 0 for businesses flagged for
// automatic collection.
type AutoCollector interface {
	AutoCollect(ctx context.Context) domain.Stream
}

// Validator is implemented by plugins that can check their own configuration
// before registration. A failure skips the business.
type Validator interface {
	Validate() error
}
