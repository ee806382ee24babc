package ports

import (
	"context"

	"github.com/DJune12138/Collection3/internal/domain"
)

// BuilderMiddleware hooks requests leaving a Builder and responses entering it.
type BuilderMiddleware interface {
	ProcessRequest(ctx context.Context, req *domain.Request) (*domain.Request, error)
	ProcessResponse(ctx context.Context, resp *domain.Response) (*domain.Response, error)
}

// DownloaderMiddleware hooks requests entering the Downloader and responses leaving it.
type DownloaderMiddleware interface {
	ProcessRequest(ctx context.Context, req *domain.Request) (*domain.Request, error)
	ProcessResponse(ctx context.Context, resp *domain.Response) (*domain.Response, error)
}
