// Package downloader turns a Request into a Response by dispatching it to
// the backend selected by its way.
package downloader

import (
	"context"
	"time"

	"github.com/DJune12138/Collection3/internal/adapters/db"
	"github.com/DJune12138/Collection3/internal/adapters/file"
	"github.com/DJune12138/Collection3/internal/adapters/sdk"
	"github.com/DJune12138/Collection3/internal/adapters/shell"
	"github.com/DJune12138/Collection3/internal/adapters/web"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Downloader implements ports.Downloader over the web, db, shell, file, sdk
// and test ways.
type Downloader struct {
	web       *web.Fetcher
	db        *db.Runner
	callables *sdk.Callables
	obs       ports.Observability
}

var _ ports.Downloader = (*Downloader)(nil)

// Option customizes a Downloader.
type Option func(*Downloader)

func WithFetcher(f *web.Fetcher) Option { return func(d *Downloader) { d.web = f } }

func WithDrivers(r ports.DriverResolver) Option {
	return func(d *Downloader) { d.db = db.NewRunner(r) }
}

func WithCallables(c *sdk.Callables) Option { return func(d *Downloader) { d.callables = c } }

func WithObservability(o ports.Observability) Option { return func(d *Downloader) { d.obs = o } }

func New(opts ...Option) *Downloader {
	d := &Downloader{}
	for _, opt := range opts {
		opt(d)
	}
	if d.web == nil {
		d.web = web.New(web.DefaultConfig())
	}
	if d.db == nil {
		d.db = db.NewRunner(nil)
	}
	if d.callables == nil {
		d.callables = sdk.NewCallables()
	}
	return d
}

// Dispatch calls the backend for req. Classified errors describe bad
// parameters; any other error is a backend I/O failure.
func (d *Downloader) Dispatch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req == nil {
		return nil, domain.Errorf(domain.KindTypeMismatch, "dispatch", "nil request")
	}
	start := time.Now()
	payload, err := d.dispatch(ctx, req)
	if d.obs != nil {
		d.obs.ObserveLatency(ports.MetricDispatchSeconds, time.Since(start).Seconds(), string(req.Way))
	}
	if err != nil {
		return nil, err
	}
	return &domain.Response{Payload: payload, Meta: req.Meta, Request: req}, nil
}

func (d *Downloader) dispatch(ctx context.Context, req *domain.Request) (any, error) {
	way, ok := domain.ParseWay(string(req.Way))
	if !ok {
		ways := make([]string, len(domain.Ways))
		for i, w := range domain.Ways {
			ways[i] = string(w)
		}
		return nil, domain.Unsupported("dispatch", "way", req.Way, ways...)
	}

	switch way {
	case domain.WayWeb:
		return d.web.Fetch(ctx, req.Params)
	case domain.WayDB:
		return d.db.Run(ctx, req.Params)
	case domain.WayShell:
		return shell.Run(ctx, req.Params)
	case domain.WayFile:
		return file.Read(ctx, req.Params)
	case domain.WaySDK:
		return d.callables.Call(ctx, req.Params)
	default:
		v, _ := req.Param("literal_payload")
		return v, nil
	}
}
