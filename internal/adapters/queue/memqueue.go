package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// ErrSchedulerClosed is returned by Next once the queue has been closed.
var ErrSchedulerClosed = errors.New("scheduler closed")

// MemQueue is an unbounded in-memory queue that preserves FIFO ordering.
// Next parks callers while the queue is empty.
type MemQueue struct {
	mu     sync.Mutex
	data   []*domain.Request
	ready  chan struct{}
	closed chan struct{}
	once   sync.Once
}

func NewMemQueue() *MemQueue {
	return &MemQueue{
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (q *MemQueue) Add(req *domain.Request) {
	q.mu.Lock()
	q.data = append(q.data, req)
	q.mu.Unlock()
	q.signal()
}

func (q *MemQueue) Next(ctx context.Context) (*domain.Request, error) {
	for {
		q.mu.Lock()
		if len(q.data) > 0 {
			req := q.data[0]
			q.data[0] = nil
			q.data = q.data[1:]
			more := len(q.data) > 0
			q.mu.Unlock()
			if more {
				// pass the wakeup on to the next parked caller
				q.signal()
			}
			return req, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.closed:
			return nil, ErrSchedulerClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// Close wakes every parked caller; pending requests stay queued but Next
// reports ErrSchedulerClosed once the queue drains.
func (q *MemQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}

func (q *MemQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

var _ ports.Scheduler = (*MemQueue)(nil)
