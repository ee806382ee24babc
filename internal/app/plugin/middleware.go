package plugin

import (
	"context"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// PassThrough is the identity middleware shared by every business that does
// not bring its own. It serves both the builder and the downloader side.
type PassThrough struct{}

var (
	_ ports.BuilderMiddleware    = PassThrough{}
	_ ports.DownloaderMiddleware = PassThrough{}
)

func (PassThrough) ProcessRequest(_ context.Context, req *domain.Request) (*domain.Request, error) {
	return req, nil
}

func (PassThrough) ProcessResponse(_ context.Context, resp *domain.Response) (*domain.Response, error) {
	return resp, nil
}

// Defaults are the shared instances substituted for missing optional components.
var (
	DefaultPipeline             ports.Pipeline             = BasePipeline{}
	DefaultBuilderMiddleware    ports.BuilderMiddleware    = PassThrough{}
	DefaultDownloaderMiddleware ports.DownloaderMiddleware = PassThrough{}
)

// StampParams is a builder middleware that fills missing request parameters
// with fixed defaults, e.g. a shared db_name or rate_limit_key for a business.
type StampParams map[string]any

var _ ports.BuilderMiddleware = StampParams(nil)

func (s StampParams) ProcessRequest(_ context.Context, req *domain.Request) (*domain.Request, error) {
	if len(s) == 0 {
		return req, nil
	}
	if req.Params == nil {
		req.Params = make(map[string]any, len(s))
	}
	for k, v := range s {
		if _, ok := req.Params[k]; !ok {
			req.Params[k] = v
		}
	}
	return req, nil
}

func (StampParams) ProcessResponse(_ context.Context, resp *domain.Response) (*domain.Response, error) {
	return resp, nil
}
