// Package demo1 splits a literal payload into one item per field and keeps
// what its pipeline received.
package demo1

import (
	"context"
	"strings"
	"sync"

	"github.com/DJune12138/Collection3/internal/app/plugin"
	"github.com/DJune12138/Collection3/internal/app/registry"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

const Name = "demo1"

type Builder struct {
	*plugin.BaseBuilder
}

func New() *Builder {
	return &Builder{plugin.NewBaseBuilder(Name,
		map[string]any{"way": "test", "literal_payload": "alpha,beta,gamma"},
	)}
}

func (b *Builder) Callbacks() ports.Callbacks {
	cbs := b.BaseBuilder.Callbacks()
	cbs[domain.DefaultCallback] = b.parse
	return cbs
}

func (b *Builder) parse(resp *domain.Response) domain.Stream {
	s, _ := resp.Payload.(string)
	return func(yield func(domain.Output) bool) {
		for _, field := range strings.Split(s, ",") {
			if field = strings.TrimSpace(field); field == "" {
				continue
			}
			if !yield(domain.Emit(domain.NewItem(field))) {
				return
			}
		}
	}
}

// Pipeline collects item payloads under the business sink lock.
type Pipeline struct {
	mu   sync.Mutex
	seen []string
}

func (p *Pipeline) Callbacks() ports.Callbacks {
	return ports.Callbacks{domain.DefaultItemCallback: p.process}
}

func (p *Pipeline) process(ctx context.Context, item *domain.Item) domain.Stream {
	_ = plugin.Serialize(ctx, Name, func(context.Context) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.seen = append(p.seen, item.Payload.(string))
		return nil
	})
	return domain.Empty()
}

// Seen returns the payloads processed so far.
func (p *Pipeline) Seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func Descriptor() registry.Descriptor {
	return registry.Descriptor{
		Builder:  func() (ports.Builder, error) { return New(), nil },
		Pipeline: func() (ports.Pipeline, error) { return &Pipeline{}, nil },
		BuilderMiddleware: func() (ports.BuilderMiddleware, error) {
			return plugin.StampParams{"rate_limit_key": Name}, nil
		},
		Summary: "literal payload split into items",
	}
}
