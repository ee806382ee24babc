package engine

import (
	"sync"

	"github.com/DJune12138/Collection3/internal/domain"
)

// counter is a monotonically increasing count behind its own mutex.
type counter struct {
	mu sync.Mutex
	n  int64
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type errorTally struct {
	mu     sync.Mutex
	total  int64
	byKind map[domain.Kind]int64
}

func (t *errorTally) add(k domain.Kind) {
	t.mu.Lock()
	t.total++
	t.byKind[k]++
	t.mu.Unlock()
}

func (t *errorTally) snapshot() (int64, map[string]int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.byKind))
	for k, n := range t.byKind {
		out[k.String()] = n
	}
	return t.total, out
}
