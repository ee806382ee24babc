package collection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DJune12138/Collection3/business"
	"github.com/DJune12138/Collection3/internal/adapters/alert"
	"github.com/DJune12138/Collection3/internal/adapters/db"
	"github.com/DJune12138/Collection3/internal/adapters/observability"
	"github.com/DJune12138/Collection3/internal/adapters/opcua"
	"github.com/DJune12138/Collection3/internal/adapters/queue"
	"github.com/DJune12138/Collection3/internal/adapters/sdk"
	"github.com/DJune12138/Collection3/internal/adapters/web"
	"github.com/DJune12138/Collection3/internal/app/alerting"
	"github.com/DJune12138/Collection3/internal/app/config"
	"github.com/DJune12138/Collection3/internal/app/downloader"
	"github.com/DJune12138/Collection3/internal/app/engine"
	"github.com/DJune12138/Collection3/internal/app/registry"
	"github.com/DJune12138/Collection3/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	catalog       *registry.Catalog
	selection     registry.Selection
	logger        *zap.Logger
	observability ports.Observability
	registry      *prometheus.Registry
	scheduler     ports.Scheduler
	downloader    ports.Downloader
	alerter       ports.Alerter
	callables     *sdk.Callables
	drivers       map[string]ports.Driver
	noMetrics     bool
}

// WithCatalog replaces the shipped business catalog.
func WithCatalog(c *Catalog) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.catalog = c
	}
}

// WithSelection overrides the businesses section of the config.
func WithSelection(sel Selection) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.selection = sel
	}
}

// WithLogger sets the zap logger behind the default observability backend.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithMetricsRegistry registers the default metrics on reg and serves it.
func WithMetricsRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithScheduler swaps the in-memory FIFO.
func WithScheduler(s Scheduler) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.scheduler = s
	}
}

// WithDownloader replaces the way dispatcher entirely.
func WithDownloader(d Downloader) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.downloader = d
	}
}

// WithAlerter replaces the alert channel selected by the config.
func WithAlerter(a Alerter) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.alerter = a
	}
}

// WithCallables provides the registry of sdk-way callables.
func WithCallables(c *Callables) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.callables = c
	}
}

// WithDriver registers a db-way driver under name next to the configured databases.
func WithDriver(name string, d Driver) RuntimeOption {
	return func(o *runtimeOverrides) {
		if o.drivers == nil {
			o.drivers = make(map[string]ports.Driver)
		}
		o.drivers[name] = d
	}
}

// WithoutMetricsServer keeps Run from listening on metrics.addr.
func WithoutMetricsServer() RuntimeOption {
	return func(o *runtimeOverrides) {
		o.noMetrics = true
	}
}

// Runtime wires registry, scheduler, downloader and engine for one run and
// owns the resources they hold.
type Runtime struct {
	cfg        *Config
	obs        ports.Observability
	logger     *zap.Logger
	registry   *prometheus.Registry
	set        *registry.Set
	scheduler  ports.Scheduler
	engine     *engine.Engine
	drivers    *db.Registry
	opcua      *opcua.Pool
	deduper    *alerting.Deduper
	closers    []func() error
	noMetrics  bool
	metricsSrv *http.Server
	gaugeStop  chan struct{}
}

// NewRuntime builds every collaborator from cfg. Businesses that fail to
// register are logged and skipped; an empty selection is a bootstrap error.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &Runtime{cfg: cfg, noMetrics: overrides.noMetrics}
	defer func() {
		if err != nil {
			_ = rt.close()
		}
	}()

	rt.logger = overrides.logger
	if rt.logger == nil {
		if rt.logger, err = observability.NewLogger(cfg.Log); err != nil {
			return nil, err
		}
	}
	rt.registry = overrides.registry
	if rt.registry == nil {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	rt.obs = overrides.observability
	if rt.obs == nil {
		if rt.obs, err = observability.NewObs(rt.logger, rt.registry); err != nil {
			return nil, err
		}
	}

	rt.drivers = db.NewRegistry()
	rt.closers = append(rt.closers, rt.drivers.Close)
	for _, name := range cfg.DatabaseNames() {
		if err = rt.drivers.Open(name, cfg.Databases[name]); err != nil {
			return nil, fmt.Errorf("database %s: %w", name, err)
		}
	}
	for name, d := range overrides.drivers {
		if err = rt.drivers.Register(name, d); err != nil {
			return nil, fmt.Errorf("driver %s: %w", name, err)
		}
	}

	callables := overrides.callables
	if callables == nil {
		callables = sdk.NewCallables()
	}
	rt.opcua = opcua.NewPool(cfg.OPCUA)
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return rt.opcua.Close(ctx)
	})
	if !slices.Contains(callables.Names(), opcua.CallableName) {
		if err = opcua.Register(callables, rt.opcua); err != nil {
			return nil, err
		}
	}

	dl := overrides.downloader
	if dl == nil {
		dl = downloader.New(
			downloader.WithFetcher(web.New(cfg.Web)),
			downloader.WithDrivers(rt.drivers),
			downloader.WithCallables(callables),
			downloader.WithObservability(rt.obs),
		)
	}

	alerter := overrides.alerter
	if alerter == nil {
		alerter = rt.alerterFromConfig(cfg.Alert)
	}
	rt.deduper = alerting.NewDeduper(alerter, cfg.Alert.Cooldown, rt.obs)
	rt.closers = append(rt.closers, func() error { rt.deduper.Close(); return nil })

	catalog := overrides.catalog
	if catalog == nil {
		catalog = business.Catalog()
	}
	selection := overrides.selection
	if len(selection) == 0 {
		selection = cfg.Businesses
	}
	rt.set = registry.New(catalog, rt.obs).Build(selection, cfg.BusinessOptions)

	rt.scheduler = overrides.scheduler
	if rt.scheduler == nil {
		rt.scheduler = queue.NewMemQueue()
	}
	rt.closers = append(rt.closers, func() error { rt.scheduler.Close(); return nil })

	rt.engine, err = engine.New(rt.set, rt.scheduler, dl,
		engine.WithPolicy(cfg.Engine.Policy()),
		engine.WithObservability(rt.obs),
		engine.WithAlerts(rt.deduper),
	)
	if err != nil {
		return nil, fmt.Errorf("%w (selection: %s)", err, selection)
	}
	return rt, nil
}

func (rt *Runtime) alerterFromConfig(c config.AlertConfig) ports.Alerter {
	switch c.Kind {
	case config.AlertWebhook:
		return alert.NewWebhook(c.URL, c.Timeout)
	case config.AlertNATS:
		n, err := alert.DialNATS(c.URL, c.Subject, c.Timeout)
		if err != nil {
			rt.obs.LogError("alert_channel_unavailable", err, ports.Field{Key: "kind", Value: c.Kind})
			return alert.Nop{}
		}
		rt.closers = append(rt.closers, n.Close)
		return n
	default:
		return alert.Nop{}
	}
}

// Set exposes the registered businesses.
func (rt *Runtime) Set() *registry.Set { return rt.set }

// Run drives every phase to completion, then releases the runtime's resources.
func (rt *Runtime) Run(ctx context.Context) (Report, error) {
	if rt == nil {
		return Report{}, fmt.Errorf("runtime is nil")
	}
	if !rt.noMetrics {
		rt.startMetrics()
	}
	rep, err := rt.engine.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rep, multierr.Append(err, rt.Shutdown(shutdownCtx))
}

// Shutdown stops the metrics server and closes drivers, sessions and channels.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var errs error
	if rt.gaugeStop != nil {
		close(rt.gaugeStop)
		rt.gaugeStop = nil
	}
	if rt.metricsSrv != nil {
		if err := rt.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = multierr.Append(errs, err)
		}
		rt.metricsSrv = nil
	}
	return multierr.Append(errs, rt.close())
}

func (rt *Runtime) close() error {
	var errs error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, rt.closers[i]())
	}
	rt.closers = nil
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
	return errs
}

func (rt *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{Registry: rt.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rt.metricsSrv = &http.Server{
		Addr:              rt.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := rt.metricsSrv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.obs.LogError("metrics_server_exited", err, ports.Field{Key: "addr", Value: srv.Addr})
		}
	}()

	rt.gaugeStop = make(chan struct{})
	go rt.recordQueueGauge(rt.gaugeStop, time.Second)
}

func (rt *Runtime) recordQueueGauge(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rt.obs.SetGauge(ports.MetricQueueLength, float64(rt.scheduler.Len()))
		}
	}
}
