// Package engine drives registered businesses through the phase lifecycle:
// seed the scheduler, drain it with a bounded worker set, and advance while
// some business implements the next phase.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/DJune12138/Collection3/internal/adapters/observability"
	"github.com/DJune12138/Collection3/internal/app/plugin"
	"github.com/DJune12138/Collection3/internal/app/registry"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Bootstrap failures. These are the only errors that stop a run before it starts.
var (
	ErrNoBusinesses = errors.New("engine: no business registered")
	ErrNoScheduler  = errors.New("engine: scheduler is nil")
	ErrNoDownloader = errors.New("engine: downloader is nil")
)

const (
	defaultMaxPhases    = 10
	defaultPollInterval = 200 * time.Millisecond
)

// AlertSink receives every classified failure of a worker cycle or seed.
type AlertSink interface {
	Report(ctx context.Context, business string, err error)
}

// Engine runs one Set to completion.
type Engine struct {
	set    *registry.Set
	names  []string
	sched  ports.Scheduler
	dl     ports.Downloader
	pol    ports.Policy
	obs    ports.Observability
	alerts AlertSink

	requests  counter
	responses counter
	failures  errorTally
}

// Option customizes an Engine.
type Option func(*Engine)

func WithPolicy(p ports.Policy) Option { return func(e *Engine) { e.pol = p } }

func WithObservability(o ports.Observability) Option { return func(e *Engine) { e.obs = o } }

func WithAlerts(a AlertSink) Option { return func(e *Engine) { e.alerts = a } }

// New checks the bootstrap invariants and fills absent optional components
// with the shared defaults.
func New(set *registry.Set, sched ports.Scheduler, dl ports.Downloader, opts ...Option) (*Engine, error) {
	if sched == nil {
		return nil, ErrNoScheduler
	}
	if dl == nil {
		return nil, ErrNoDownloader
	}
	if set == nil || set.Len() == 0 {
		return nil, ErrNoBusinesses
	}
	e := &Engine{set: set, names: set.Names(), sched: sched, dl: dl, failures: errorTally{byKind: map[domain.Kind]int64{}}}
	for _, opt := range opts {
		opt(e)
	}
	if e.obs == nil {
		e.obs = observability.Nop{}
	}
	if e.pol.MaxPhases <= 0 {
		e.pol.MaxPhases = defaultMaxPhases
	}
	if e.pol.PollInterval <= 0 {
		e.pol.PollInterval = defaultPollInterval
	}
	for _, name := range e.names {
		if set.Pipelines[name] == nil {
			set.Pipelines[name] = plugin.DefaultPipeline
		}
		if set.BuilderMiddlewares[name] == nil {
			set.BuilderMiddlewares[name] = plugin.DefaultBuilderMiddleware
		}
		if set.DownloaderMiddlewares[name] == nil {
			set.DownloaderMiddlewares[name] = plugin.DefaultDownloaderMiddleware
		}
	}
	return e, nil
}

// Report summarizes a run.
type Report struct {
	Businesses   int
	Phases       int
	Requests     int64
	Responses    int64
	Errors       int64
	ErrorsByKind map[string]int64
	Skipped      int
	Elapsed      time.Duration
}

// Run executes phases until none is implemented or the cap is reached. It
// returns early only when ctx is cancelled or every worker stopped with work
// outstanding; the partial report is returned in both cases.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	e.obs.LogInfo("engine_started",
		ports.Field{Key: "businesses", Value: e.names},
		ports.Field{Key: "workers", Value: e.pol.Workers(len(e.names))},
		ports.Field{Key: "max_phases", Value: e.pol.MaxPhases},
	)

	phases := 0
	var runErr error
	for phase := 0; phase < e.pol.MaxPhases; phase++ {
		if runErr = ctx.Err(); runErr != nil {
			break
		}
		if phase > 0 && !e.implemented(phase) {
			break
		}
		if runErr = e.runPhase(ctx, phase); runErr != nil {
			break
		}
		phases++
	}

	rep := e.report(phases, time.Since(start))
	fields := []ports.Field{
		{Key: "phases", Value: rep.Phases},
		{Key: "requests", Value: rep.Requests},
		{Key: "responses", Value: rep.Responses},
		{Key: "errors", Value: rep.Errors},
		{Key: "elapsed", Value: rep.Elapsed.String()},
	}
	if runErr != nil {
		e.obs.LogCritical("engine_aborted", runErr, fields...)
		return rep, runErr
	}
	e.obs.LogInfo("engine_finished", fields...)
	return rep, nil
}

// implemented reports whether any builder has a hook for phase > 0.
func (e *Engine) implemented(phase int) bool {
	for _, name := range e.names {
		if hook, _ := endHook(e.set.Builders[name], phase); hook != nil {
			return true
		}
	}
	return false
}

func (e *Engine) report(phases int, elapsed time.Duration) Report {
	total, byKind := e.failures.snapshot()
	return Report{
		Businesses:   len(e.names),
		Phases:       phases,
		Requests:     e.requests.get(),
		Responses:    e.responses.get(),
		Errors:       total,
		ErrorsByKind: byKind,
		Skipped:      len(e.set.Skipped),
		Elapsed:      elapsed,
	}
}

// fail records a classified failure for business: counted, logged and alerted.
func (e *Engine) fail(ctx context.Context, business string, err error) {
	de := domain.WithBusiness(err, business)
	e.failures.add(de.Kind)
	e.obs.RecordFailure(business, de.Kind)
	e.obs.LogError("cycle_failed", de,
		ports.Field{Key: "business", Value: business},
		ports.Field{Key: "kind", Value: de.Kind.String()},
	)
	if e.alerts != nil {
		e.alerts.Report(ctx, business, de)
	}
}
