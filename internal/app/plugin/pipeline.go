package plugin

import (
	"context"
	"sync"

	"github.com/DJune12138/Collection3/internal/app/keylock"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// BasePipeline is the shared default Pipeline: items are accepted and dropped.
type BasePipeline struct{}

var _ ports.Pipeline = BasePipeline{}

// ProcessItem is the default item callback.
func (BasePipeline) ProcessItem(*domain.Item) domain.Stream { return domain.Empty() }

func (p BasePipeline) Callbacks() ports.Callbacks {
	return ports.Callbacks{domain.DefaultItemCallback: p.ProcessItem}
}

// Locks serializes sink writes per key, for pipelines that insert into the
// same table from several workers. An empty key applies no locking.
var Locks = &keylock.Map{}

// Serialize runs fn while holding the sink lock for key.
func Serialize(ctx context.Context, key string, fn func(context.Context) error) error {
	return Locks.Do(key, func() error { return fn(ctx) })
}

// Counter counts occurrences per key.
type Counter struct {
	mu sync.Mutex
	m  map[string]int
}

func NewCounter() *Counter { return &Counter{m: map[string]int{}} }

// Inc increments key and returns the new count.
func (c *Counter) Inc(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key]++
	return c.m[key]
}

// Value returns the count for key.
func (c *Counter) Value(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key]
}
