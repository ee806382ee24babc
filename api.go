package collection3

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	base "github.com/DJune12138/Collection3/pkg/collection"
)

// Re-exported errors for convenience.
var (
	ErrNoBusinesses          = base.ErrNoBusinesses
	ErrNoScheduler           = base.ErrNoScheduler
	ErrNoDownloader          = base.ErrNoDownloader
	ErrChannelPipelineClosed = base.ErrChannelPipelineClosed
)

// Type aliases so consumers can import github.com/DJune12138/Collection3 directly.
type (
	Config          = base.Config
	EngineConfig    = base.EngineConfig
	MetricsConfig   = base.MetricsConfig
	AlertConfig     = base.AlertConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	Report          = base.Report
	Request         = base.Request
	Response        = base.Response
	Item            = base.Item
	Stream          = base.Stream
	Builder         = base.Builder
	Pipeline        = base.Pipeline
	Callbacks       = base.Callbacks
	BaseBuilder     = base.BaseBuilder
	Catalog         = base.Catalog
	Descriptor      = base.Descriptor
	Selection       = base.Selection
	Scheduler       = base.Scheduler
	Downloader      = base.Downloader
	Driver          = base.Driver
	Observability   = base.Observability
	Alerter         = base.Alerter
	ItemFunc        = base.ItemFunc
	ChannelPipeline = base.ChannelPipeline
	Callables       = base.Callables
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

// Run builds a runtime from cfg and drives it to completion.
func Run(ctx context.Context, cfg *Config, opts ...RuntimeOption) (Report, error) {
	rt, err := base.NewRuntime(cfg, opts...)
	if err != nil {
		return Report{}, err
	}
	return rt.Run(ctx)
}

func WithCatalog(c *Catalog) RuntimeOption {
	return base.WithCatalog(c)
}

func WithSelection(sel Selection) RuntimeOption {
	return base.WithSelection(sel)
}

func WithLogger(l *zap.Logger) RuntimeOption {
	return base.WithLogger(l)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithMetricsRegistry(reg *prometheus.Registry) RuntimeOption {
	return base.WithMetricsRegistry(reg)
}

func WithScheduler(s Scheduler) RuntimeOption {
	return base.WithScheduler(s)
}

func WithDownloader(d Downloader) RuntimeOption {
	return base.WithDownloader(d)
}

func WithAlerter(a Alerter) RuntimeOption {
	return base.WithAlerter(a)
}

func WithCallables(c *Callables) RuntimeOption {
	return base.WithCallables(c)
}

func WithDriver(name string, d Driver) RuntimeOption {
	return base.WithDriver(name, d)
}

func WithoutMetricsServer() RuntimeOption {
	return base.WithoutMetricsServer()
}

// Pipeline adapters.
func NewCallbackPipeline(fn ItemFunc) Pipeline {
	return base.NewCallbackPipeline(fn)
}

func NewChannelPipeline(buffer int) (*ChannelPipeline, <-chan *Item, func()) {
	return base.NewChannelPipeline(buffer)
}

// Catalog helpers.
func NewCatalog() *Catalog {
	return base.NewCatalog()
}

func NewBaseBuilder(name string, start ...map[string]any) *BaseBuilder {
	return base.NewBaseBuilder(name, start...)
}
