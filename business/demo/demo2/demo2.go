// Package demo2 runs a shell command in the seed phase and a summary request
// in the first end phase.
package demo2

import (
	"context"

	"github.com/DJune12138/Collection3/internal/adapters/shell"
	"github.com/DJune12138/Collection3/internal/app/plugin"
	"github.com/DJune12138/Collection3/internal/app/registry"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

const Name = "demo2"

type Builder struct {
	*plugin.BaseBuilder
	lines *plugin.Counter
}

var _ ports.EndRequester = (*Builder)(nil)

func New() *Builder {
	return &Builder{
		BaseBuilder: plugin.NewBaseBuilder(Name,
			map[string]any{"way": "shell", "command": []any{"echo", "collected by demo2"}, "timeout": 5},
		),
		lines: plugin.NewCounter(),
	}
}

func (b *Builder) Callbacks() ports.Callbacks {
	cbs := b.BaseBuilder.Callbacks()
	cbs[domain.DefaultCallback] = b.parse
	cbs["summarize"] = b.summarize
	return cbs
}

func (b *Builder) parse(resp *domain.Response) domain.Stream {
	proc, ok := resp.Payload.(*shell.CompletedProcess)
	if !ok || !proc.OK() {
		return domain.Empty()
	}
	return func(yield func(domain.Output) bool) {
		for _, line := range proc.Lines() {
			b.lines.Inc(Name)
			if !yield(domain.Emit(domain.NewItem(line))) {
				return
			}
		}
	}
}

func (b *Builder) summarize(resp *domain.Response) domain.Stream {
	return domain.Items(domain.NewItem(resp.Payload))
}

// EndRequests implements one end phase that reports how many lines phase 0 produced.
func (b *Builder) EndRequests() []ports.SeedFunc {
	return []ports.SeedFunc{b.endRequests1}
}

func (b *Builder) endRequests1(context.Context) domain.Stream {
	n := b.lines.Value(Name)
	return domain.Requests(domain.NewRequest(domain.WayTest, map[string]any{
		"literal_payload": map[string]any{"business": Name, "lines": n},
	}).WithCallback("summarize"))
}

func Descriptor() registry.Descriptor {
	return registry.Descriptor{
		Builder: func() (ports.Builder, error) { return New(), nil },
		Summary: "shell seed with an end_requests_1 summary",
	}
}
