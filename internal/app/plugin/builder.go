package plugin

import (
	"context"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// BaseBuilder is the default Builder. Businesses embed it, set a name and a
// seed description, and override Callbacks to add their own parse methods:
//
//	func (b *Demo) Callbacks() ports.Callbacks {
//		cbs := b.BaseBuilder.Callbacks()
//		cbs["parse"] = b.parse
//		return cbs
//	}
type BaseBuilder struct {
	BuilderName string
	Start       []map[string]any
	Mode        SeedMode
}

var (
	_ ports.Builder   = (*BaseBuilder)(nil)
	_ ports.Validator = (*BaseBuilder)(nil)
)

// NewBaseBuilder returns a builder seeding one request per start entry.
func NewBaseBuilder(name string, start ...map[string]any) *BaseBuilder {
	return &BaseBuilder{BuilderName: name, Start: start}
}

func (b *BaseBuilder) Name() string { return b.BuilderName }

// Validate checks the seed mode and the static seed description.
func (b *BaseBuilder) Validate() error {
	switch b.Mode {
	case SeedStatic:
		return ValidateSeeds(b.Start)
	case SeedOnce, SeedNone:
		return nil
	default:
		return domain.Errorf(domain.KindValidationFailure, "seed", "unknown seed mode %q", b.Mode)
	}
}

// StartRequests yields the phase-0 requests for the configured seed mode.
func (b *BaseBuilder) StartRequests(ctx context.Context) domain.Stream {
	switch b.Mode {
	case SeedOnce:
		return domain.Requests(domain.NewRequest(domain.WayTest, nil))
	case SeedNone:
		return domain.Empty()
	}
	return func(yield func(domain.Output) bool) {
		for _, entry := range b.Start {
			if ctx.Err() != nil {
				return
			}
			if !yield(domain.Yield(SeedRequest(entry))) {
				return
			}
		}
	}
}

// Parse is the default response callback: the payload becomes one item.
func (b *BaseBuilder) Parse(resp *domain.Response) domain.Stream {
	return domain.Items(domain.NewItem(resp.Payload))
}

func (b *BaseBuilder) Callbacks() ports.Callbacks {
	return ports.Callbacks{domain.DefaultCallback: b.Parse}
}

// DownloaderErrorCallback re-raises the failure, ending the lineage.
func (b *BaseBuilder) DownloaderErrorCallback(_ context.Context, err error, _ *domain.Request) (*domain.Request, error) {
	return nil, err
}

// Retry returns a DownloaderErrorCallback that re-enqueues the failed
// request up to attempts times, counting by request ID.
func Retry(attempts int) func(context.Context, error, *domain.Request) (*domain.Request, error) {
	seen := NewCounter()
	return func(_ context.Context, err error, req *domain.Request) (*domain.Request, error) {
		if seen.Inc(req.ID) > attempts {
			return nil, err
		}
		return req, nil
	}
}
