package collection

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelPipelineClosed is reported for items processed after the channel
// pipeline was closed.
var ErrChannelPipelineClosed = errors.New("collection: channel pipeline closed")

// ItemFunc handles one item. Returned requests are scheduled for the same business.
type ItemFunc func(ctx context.Context, item *Item) []*Request

// NewCallbackPipeline adapts a function into a Pipeline so callers can plug
// arbitrary sinks without defining structs. A nil fn leaves process_item
// unresolved.
func NewCallbackPipeline(fn ItemFunc) Pipeline {
	return &callbackPipeline{fn: fn}
}

// NewChannelPipeline exposes items via a channel; it returns the pipeline,
// the read-only channel, and a close function the caller should invoke
// during shutdown; it also closes the channel. Items arriving after close
// are dropped and counted.
func NewChannelPipeline(buffer int) (*ChannelPipeline, <-chan *Item, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan *Item, buffer)
	p := &ChannelPipeline{ch: ch, closed: make(chan struct{})}
	return p, ch, p.close
}

type callbackPipeline struct {
	fn ItemFunc
}

func (p *callbackPipeline) Callbacks() Callbacks {
	if p.fn == nil {
		return Callbacks{}
	}
	return Callbacks{"process_item": p.process}
}

func (p *callbackPipeline) process(ctx context.Context, item *Item) Stream {
	return Requests(p.fn(ctx, item)...)
}

// ChannelPipeline forwards every item to a channel.
type ChannelPipeline struct {
	ch      chan *Item
	closed  chan struct{}
	once    sync.Once
	sendMu  sync.RWMutex
	mu      sync.Mutex
	dropped int
}

func (p *ChannelPipeline) Callbacks() Callbacks {
	return Callbacks{"process_item": p.process}
}

func (p *ChannelPipeline) process(ctx context.Context, item *Item) Stream {
	if err := p.send(ctx, item); err != nil {
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
	}
	return Empty()
}

func (p *ChannelPipeline) send(ctx context.Context, item *Item) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	select {
	case <-p.closed:
		return ErrChannelPipelineClosed
	default:
	}

	select {
	case <-p.closed:
		return ErrChannelPipelineClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- item:
		return nil
	}
}

// Dropped counts items that could not be delivered.
func (p *ChannelPipeline) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *ChannelPipeline) close() {
	p.once.Do(func() {
		close(p.closed)
		// senders see closed and release the read lock before ch is closed
		p.sendMu.Lock()
		close(p.ch)
		p.sendMu.Unlock()
	})
}
