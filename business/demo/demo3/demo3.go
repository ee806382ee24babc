// Package demo3 reads the host name through the sdk way. It supports the
// automatic collection mode.
package demo3

import (
	"context"
	"os"

	"github.com/DJune12138/Collection3/internal/app/plugin"
	"github.com/DJune12138/Collection3/internal/app/registry"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

const Name = "demo3"

type Builder struct {
	*plugin.BaseBuilder
}

var _ ports.AutoCollector = (*Builder)(nil)

func New() *Builder {
	b := &Builder{plugin.NewBaseBuilder(Name)}
	b.Mode = plugin.SeedOnce
	return b
}

func (b *Builder) Callbacks() ports.Callbacks {
	cbs := b.BaseBuilder.Callbacks()
	cbs["host"] = b.host
	return cbs
}

// AutoCollect replaces the seed with an sdk call when auto_collect is set.
func (b *Builder) AutoCollect(context.Context) domain.Stream {
	return domain.Requests(domain.NewRequest(domain.WaySDK, map[string]any{
		"callable": os.Hostname,
	}).WithCallback("host"))
}

func (b *Builder) host(resp *domain.Response) domain.Stream {
	name, _ := resp.Payload.(string)
	return domain.Items(domain.NewItem(map[string]any{"business": Name, "host": name}))
}

func Descriptor() registry.Descriptor {
	return registry.Descriptor{
		Builder: func() (ports.Builder, error) { return New(), nil },
		Summary: "sdk call with auto collection",
	}
}
