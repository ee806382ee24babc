package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DJune12138/Collection3/internal/adapters/observability"
	"github.com/DJune12138/Collection3/internal/adapters/queue"
	"github.com/DJune12138/Collection3/internal/app/downloader"
	"github.com/DJune12138/Collection3/internal/app/plugin"
	"github.com/DJune12138/Collection3/internal/app/registry"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

var testPolicy = ports.Policy{MaxAsync: 4, ConcurrencyMultiplier: 2, PollInterval: 5 * time.Millisecond}

type recordingPipeline struct {
	mu       sync.Mutex
	payloads []any
}

func (p *recordingPipeline) Callbacks() ports.Callbacks {
	return ports.Callbacks{domain.DefaultItemCallback: p.process}
}

func (p *recordingPipeline) process(item *domain.Item) domain.Stream {
	p.mu.Lock()
	p.payloads = append(p.payloads, item.Payload)
	p.mu.Unlock()
	return domain.Empty()
}

func (p *recordingPipeline) seen() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.payloads...)
}

type entry struct {
	builder  ports.Builder
	pipeline ports.Pipeline
	options  registry.BusinessOptions
}

func newSet(entries ...entry) *registry.Set {
	set := &registry.Set{
		Builders:              map[string]ports.Builder{},
		Pipelines:             map[string]ports.Pipeline{},
		BuilderMiddlewares:    map[string]ports.BuilderMiddleware{},
		DownloaderMiddlewares: map[string]ports.DownloaderMiddleware{},
		Options:               map[string]registry.BusinessOptions{},
	}
	for _, e := range entries {
		name := e.builder.Name()
		set.Builders[name] = e.builder
		if e.pipeline != nil {
			set.Pipelines[name] = e.pipeline
		}
		set.Options[name] = e.options
	}
	return set
}

func run(t *testing.T, set *registry.Set, opts ...Option) Report {
	t.Helper()
	return runWith(t, set, downloader.New(), opts...)
}

func runWith(t *testing.T, set *registry.Set, dl ports.Downloader, opts ...Option) Report {
	t.Helper()
	q := queue.NewMemQueue()
	defer q.Close()
	e, err := New(set, q, dl, append([]Option{WithPolicy(testPolicy)}, opts...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rep, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, rep.Requests, rep.Responses, "every request completes one cycle")
	assert.Zero(t, q.Len())
	return rep
}

// builder overrides callbacks of a BaseBuilder.
type builder struct {
	*plugin.BaseBuilder
	callbacks ports.Callbacks
	onError   func(context.Context, error, *domain.Request) (*domain.Request, error)
	hooks     []ports.SeedFunc
}

func (b *builder) Callbacks() ports.Callbacks {
	cbs := b.BaseBuilder.Callbacks()
	for k, v := range b.callbacks {
		cbs[k] = v
	}
	return cbs
}

func (b *builder) DownloaderErrorCallback(ctx context.Context, err error, req *domain.Request) (*domain.Request, error) {
	if b.onError != nil {
		return b.onError(ctx, err, req)
	}
	return b.BaseBuilder.DownloaderErrorCallback(ctx, err, req)
}

type phasedBuilder struct{ *builder }

func (b phasedBuilder) EndRequests() []ports.SeedFunc { return b.hooks }

type autoBuilder struct {
	*plugin.BaseBuilder
	called atomic.Bool
}

func (b *autoBuilder) AutoCollect(context.Context) domain.Stream {
	b.called.Store(true)
	return domain.Requests(domain.NewRequest(domain.WayTest, map[string]any{"literal_payload": "auto"}))
}

func TestSingleItemRoundTrip(t *testing.T) {
	pipe := &recordingPipeline{}
	b := plugin.NewBaseBuilder("a", map[string]any{"way": "test", "literal_payload": "row"})

	rep := run(t, newSet(entry{builder: b, pipeline: pipe}))

	assert.Equal(t, int64(1), rep.Requests)
	assert.Equal(t, int64(1), rep.Responses)
	assert.Zero(t, rep.Errors)
	assert.Equal(t, 1, rep.Phases)
	assert.Equal(t, []any{"row"}, pipe.seen())
}

func TestCallbackFanOut(t *testing.T) {
	var parse2 atomic.Int32
	b := &builder{
		BaseBuilder: plugin.NewBaseBuilder("fan", map[string]any{"way": "test"}),
		callbacks: ports.Callbacks{
			"parse": func(*domain.Response) domain.Stream {
				reqs := make([]*domain.Request, 3)
				for i := range reqs {
					reqs[i] = domain.NewRequest(domain.WayTest, map[string]any{"literal_payload": i}).WithCallback("parse2")
				}
				return domain.Requests(reqs...)
			},
			"parse2": func(_ context.Context, resp *domain.Response) domain.Stream {
				parse2.Add(1)
				return domain.Empty()
			},
		},
	}

	rep := run(t, newSet(entry{builder: b}))

	assert.Equal(t, int64(4), rep.Requests)
	assert.Equal(t, int64(4), rep.Responses)
	assert.Equal(t, int32(3), parse2.Load())
}

func TestMissingParameterIsCountedAndRoundContinues(t *testing.T) {
	pipe := &recordingPipeline{}
	bad := plugin.NewBaseBuilder("bad", map[string]any{"way": "db"})
	good := plugin.NewBaseBuilder("good", map[string]any{"way": "test", "literal_payload": 1})

	rep := run(t, newSet(entry{builder: bad}, entry{builder: good, pipeline: pipe}))

	assert.Equal(t, int64(2), rep.Responses)
	assert.Equal(t, int64(1), rep.Errors)
	assert.Equal(t, map[string]int64{"missing_parameter": 1}, rep.ErrorsByKind)
	assert.Equal(t, []any{1}, pipe.seen())
}

func TestEmptySeedRunsOneNoopCycle(t *testing.T) {
	b := plugin.NewBaseBuilder("idle")
	b.Mode = plugin.SeedNone

	rep := run(t, newSet(entry{builder: b}))

	assert.Equal(t, int64(1), rep.Requests)
	assert.Equal(t, int64(1), rep.Responses)
	assert.Zero(t, rep.Errors)
}

func TestContractViolationCountedOnce(t *testing.T) {
	b := &builder{
		BaseBuilder: plugin.NewBaseBuilder("eager", map[string]any{"way": "test"}),
		callbacks: ports.Callbacks{
			"parse": func(*domain.Response) []domain.Output { return nil },
		},
	}

	rep := run(t, newSet(entry{builder: b}))

	assert.Equal(t, int64(1), rep.Responses)
	assert.Equal(t, map[string]int64{"contract_violation": 1}, rep.ErrorsByKind)
}

func TestCallbackFailuresAreIsolated(t *testing.T) {
	b := &builder{
		BaseBuilder: plugin.NewBaseBuilder("messy",
			map[string]any{"way": "test", "callback": "missing"},
			map[string]any{"way": "test", "callback": "arity"},
			map[string]any{"way": "test", "callback": "panics"},
			map[string]any{"way": "test", "callback": "invalid"},
		),
		callbacks: ports.Callbacks{
			"arity":  func(string) domain.Stream { return domain.Empty() },
			"panics": func(*domain.Response) domain.Stream { panic("parser bug") },
			"invalid": func(*domain.Response) domain.Stream {
				return domain.Of(domain.Output{}, domain.Emit(domain.NewItem("kept")))
			},
		},
	}
	pipe := &recordingPipeline{}

	rep := run(t, newSet(entry{builder: b, pipeline: pipe}))

	assert.Equal(t, int64(4), rep.Responses)
	assert.Equal(t, map[string]int64{
		"unknown_callback": 1,
		"arity_error":      1,
		"unclassified":     1,
		"type_mismatch":    1,
	}, rep.ErrorsByKind)
	assert.Equal(t, []any{"kept"}, pipe.seen())
}

func TestPhaseAdvancesWhileImplemented(t *testing.T) {
	pipe := &recordingPipeline{}
	a := phasedBuilder{&builder{
		BaseBuilder: plugin.NewBaseBuilder("a", map[string]any{"way": "test", "literal_payload": "p0"}),
		hooks: []ports.SeedFunc{func(context.Context) domain.Stream {
			return domain.Requests(domain.NewRequest(domain.WayTest, map[string]any{"literal_payload": "p1"}))
		}},
	}}
	b := plugin.NewBaseBuilder("b", map[string]any{"way": "test"})

	rep := run(t, newSet(entry{builder: a, pipeline: pipe}, entry{builder: b}))

	assert.Equal(t, 2, rep.Phases)
	// phase 0: one seed each; phase 1: a's hook plus b's noop
	assert.Equal(t, int64(4), rep.Requests)
	assert.ElementsMatch(t, []any{"p0", "p1"}, pipe.seen())
}

func TestPhaseGapStopsTheEngine(t *testing.T) {
	var late atomic.Bool
	a := phasedBuilder{&builder{
		BaseBuilder: plugin.NewBaseBuilder("a", map[string]any{"way": "test"}),
		hooks: []ports.SeedFunc{nil, func(context.Context) domain.Stream {
			late.Store(true)
			return domain.Empty()
		}},
	}}

	rep := run(t, newSet(entry{builder: a}))

	assert.Equal(t, 1, rep.Phases)
	assert.Equal(t, int64(1), rep.Requests)
	assert.False(t, late.Load())
}

func TestMaxPhasesCapsTheRun(t *testing.T) {
	hooks := make([]ports.SeedFunc, 20)
	for i := range hooks {
		hooks[i] = func(context.Context) domain.Stream { return domain.Empty() }
	}
	a := phasedBuilder{&builder{BaseBuilder: plugin.NewBaseBuilder("a"), hooks: hooks}}
	a.Mode = plugin.SeedNone

	pol := testPolicy
	pol.MaxPhases = 3
	rep := run(t, newSet(entry{builder: a}), WithPolicy(pol))

	assert.Equal(t, 3, rep.Phases)
	assert.Equal(t, int64(3), rep.Requests)
}

func TestSeedFailuresFallBackToValve(t *testing.T) {
	itemSeed := phasedBuilder{&builder{BaseBuilder: plugin.NewBaseBuilder("items")}}
	itemSeed.Mode = plugin.SeedNone
	itemSeed.hooks = []ports.SeedFunc{func(context.Context) domain.Stream {
		return domain.Items(domain.NewItem("not a request"))
	}}
	panicky := phasedBuilder{&builder{BaseBuilder: plugin.NewBaseBuilder("panicky")}}
	panicky.Mode = plugin.SeedNone
	panicky.hooks = []ports.SeedFunc{func(context.Context) domain.Stream { panic("seed bug") }}
	nilStream := phasedBuilder{&builder{BaseBuilder: plugin.NewBaseBuilder("nilstream")}}
	nilStream.Mode = plugin.SeedNone
	nilStream.hooks = []ports.SeedFunc{func(context.Context) domain.Stream { return nil }}

	rep := run(t, newSet(entry{builder: itemSeed}, entry{builder: panicky}, entry{builder: nilStream}))

	assert.Equal(t, 2, rep.Phases)
	// every lineage runs one noop cycle in each phase
	assert.Equal(t, int64(6), rep.Requests)
	assert.Equal(t, map[string]int64{
		"type_mismatch":      1,
		"unclassified":       1,
		"contract_violation": 1,
	}, rep.ErrorsByKind)
}

func TestAutoCollect(t *testing.T) {
	pipe := &recordingPipeline{}
	auto := &autoBuilder{BaseBuilder: plugin.NewBaseBuilder("auto", map[string]any{"way": "test", "literal_payload": "start"})}
	flagged := plugin.NewBaseBuilder("flagged", map[string]any{"way": "test"})

	rep := run(t, newSet(
		entry{builder: auto, pipeline: pipe, options: registry.BusinessOptions{AutoCollect: true}},
		entry{builder: flagged, options: registry.BusinessOptions{AutoCollect: true}},
	))

	assert.True(t, auto.called.Load())
	assert.Equal(t, []any{"auto"}, pipe.seen())
	assert.Equal(t, map[string]int64{"validation_failure": 1}, rep.ErrorsByKind)
	assert.Equal(t, int64(2), rep.Requests)
}

type flakyDownloader struct {
	failures atomic.Int32
	next     ports.Downloader
}

func (d *flakyDownloader) Dispatch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if d.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return d.next.Dispatch(ctx, req)
}

func TestDownloaderErrorCallbackRetries(t *testing.T) {
	pipe := &recordingPipeline{}
	b := &builder{
		BaseBuilder: plugin.NewBaseBuilder("retry", map[string]any{"way": "test", "literal_payload": "ok"}),
		onError:     plugin.Retry(3),
	}
	dl := &flakyDownloader{next: downloader.New()}
	dl.failures.Store(2)

	rep := runWith(t, newSet(entry{builder: b, pipeline: pipe}), dl)

	assert.Equal(t, int64(3), rep.Requests)
	assert.Zero(t, rep.Errors)
	assert.Equal(t, []any{"ok"}, pipe.seen())
}

// rebuildMiddleware hands the downloader a fresh request built from the
// original way and params, as request-rewriting middlewares do.
type rebuildMiddleware struct{ plugin.PassThrough }

func (rebuildMiddleware) ProcessRequest(_ context.Context, req *domain.Request) (*domain.Request, error) {
	return domain.NewRequest(req.Way, req.Params), nil
}

func TestRetryKeepsBusinessOfRewrittenRequest(t *testing.T) {
	pipe := &recordingPipeline{}
	b := &builder{
		BaseBuilder: plugin.NewBaseBuilder("rewrite", map[string]any{"way": "test", "literal_payload": "ok"}),
		onError:     plugin.Retry(1),
	}
	set := newSet(entry{builder: b, pipeline: pipe})
	set.DownloaderMiddlewares["rewrite"] = rebuildMiddleware{}
	dl := &flakyDownloader{next: downloader.New()}
	dl.failures.Store(1)

	rep := runWith(t, set, dl)

	assert.Equal(t, int32(-1), dl.failures.Load(), "two dispatch attempts")
	assert.Equal(t, int64(2), rep.Requests)
	assert.Zero(t, rep.Errors, "%v", rep.ErrorsByKind)
	assert.Equal(t, []any{"ok"}, pipe.seen())
}

func TestDownloaderErrorOutcomes(t *testing.T) {
	reraise := plugin.NewBaseBuilder("reraise", map[string]any{"way": "test"})
	silent := &builder{
		BaseBuilder: plugin.NewBaseBuilder("silent", map[string]any{"way": "test"}),
		onError:     func(context.Context, error, *domain.Request) (*domain.Request, error) { return nil, nil },
	}
	dl := &flakyDownloader{next: downloader.New()}
	dl.failures.Store(2)

	rep := runWith(t, newSet(entry{builder: reraise}, entry{builder: silent}), dl)

	assert.Equal(t, int64(2), rep.Responses)
	assert.Equal(t, map[string]int64{"unclassified": 1}, rep.ErrorsByKind)
}

type stampMiddleware struct{ plugin.PassThrough }

func (stampMiddleware) ProcessRequest(_ context.Context, req *domain.Request) (*domain.Request, error) {
	if req.Params["drop"] == true {
		return nil, nil
	}
	return req.WithMeta("stamped"), nil
}

func TestMiddlewareAndMetaCopy(t *testing.T) {
	var metas []any
	var mu sync.Mutex
	b := &builder{
		BaseBuilder: plugin.NewBaseBuilder("mw",
			map[string]any{"way": "test"},
			map[string]any{"way": "test", "drop": true},
		),
		callbacks: ports.Callbacks{"parse": func(resp *domain.Response) domain.Stream {
			mu.Lock()
			metas = append(metas, resp.Meta)
			mu.Unlock()
			return domain.Empty()
		}},
	}
	set := newSet(entry{builder: b})
	set.BuilderMiddlewares["mw"] = stampMiddleware{}

	rep := run(t, set)

	assert.Equal(t, int64(1), rep.Requests)
	assert.Equal(t, []any{"stamped"}, metas)
}

func TestPipelineRequestsAreEnqueued(t *testing.T) {
	var followed atomic.Int32
	b := &builder{
		BaseBuilder: plugin.NewBaseBuilder("chain", map[string]any{"way": "test", "literal_payload": "first"}),
		callbacks: ports.Callbacks{"follow": func(*domain.Response) domain.Stream {
			followed.Add(1)
			return domain.Empty()
		}},
	}
	set := newSet(entry{builder: b, pipeline: pipelineFunc(func(*domain.Item) domain.Stream {
		return domain.Requests(domain.NewRequest(domain.WayTest, nil).WithCallback("follow"))
	})})

	rep := run(t, set)

	assert.Equal(t, int64(2), rep.Requests)
	assert.Equal(t, int32(1), followed.Load())
}

type pipelineFunc func(*domain.Item) domain.Stream

func (f pipelineFunc) Callbacks() ports.Callbacks {
	return ports.Callbacks{domain.DefaultItemCallback: (func(*domain.Item) domain.Stream)(f)}
}

func TestManyBusinessesNeverHang(t *testing.T) {
	entries := make([]entry, 0, 25)
	for i := 0; i < 25; i++ {
		entries = append(entries, entry{builder: &builder{
			BaseBuilder: plugin.NewBaseBuilder(fmt.Sprintf("b%02d", i), map[string]any{"way": "test"}),
			callbacks: ports.Callbacks{
				"parse": func(*domain.Response) domain.Stream {
					return func(yield func(domain.Output) bool) {
						for j := 0; j < 10; j++ {
							if !yield(domain.Yield(domain.NewRequest(domain.WayTest, nil).WithCallback("leaf"))) {
								return
							}
						}
					}
				},
				"leaf": func(*domain.Response) domain.Stream { return domain.Empty() },
			},
		}})
	}

	rep := run(t, newSet(entries...))
	assert.Equal(t, int64(25*11), rep.Requests)
}

type recordingAlerts struct {
	mu         sync.Mutex
	businesses []string
}

func (r *recordingAlerts) Report(_ context.Context, business string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.businesses = append(r.businesses, business+":"+domain.KindOf(err).String())
}

func TestFailuresReachAlertsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := observability.NewObs(nil, reg)
	require.NoError(t, err)
	alerts := &recordingAlerts{}

	bad := plugin.NewBaseBuilder("bad", map[string]any{"way": "web"})
	ok := plugin.NewBaseBuilder("ok", map[string]any{"way": "test"})
	run(t, newSet(entry{builder: bad}, entry{builder: ok}), WithObservability(obs), WithAlerts(alerts))

	assert.Equal(t, []string{"bad:missing_parameter"}, alerts.businesses)
	expected := `
# HELP collection_requests_total Requests enqueued by seeds, callbacks and pipelines.
# TYPE collection_requests_total counter
collection_requests_total 2
# HELP collection_responses_total Worker cycles completed, one per dequeued request.
# TYPE collection_responses_total counter
collection_responses_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"collection_requests_total", "collection_responses_total"))
}

func TestBootstrapFailures(t *testing.T) {
	set := newSet(entry{builder: plugin.NewBaseBuilder("a")})
	q := queue.NewMemQueue()
	dl := downloader.New()

	_, err := New(set, nil, dl)
	assert.ErrorIs(t, err, ErrNoScheduler)
	_, err = New(set, q, nil)
	assert.ErrorIs(t, err, ErrNoDownloader)
	_, err = New(newSet(), q, dl)
	assert.ErrorIs(t, err, ErrNoBusinesses)
	_, err = New(nil, q, dl)
	assert.ErrorIs(t, err, ErrNoBusinesses)
}

func TestRunStopsOnCancel(t *testing.T) {
	b := plugin.NewBaseBuilder("a", map[string]any{"way": "test"})
	q := queue.NewMemQueue()
	e, err := New(newSet(entry{builder: b}), q, downloader.New(), WithPolicy(testPolicy))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
