package ports

import (
	"context"

	"github.com/DJune12138/Collection3/internal/domain"
)

// Scheduler is the shared FIFO of pending requests.
type Scheduler interface {
	Add(req *domain.Request)
	// Next blocks until a request is available, ctx is done or the scheduler is closed.
	Next(ctx context.Context) (*domain.Request, error)
	Len() int
	Close()
}

// Downloader turns a request into a response by calling its backend.
type Downloader interface {
	Dispatch(ctx context.Context, req *domain.Request) (*domain.Response, error)
}
