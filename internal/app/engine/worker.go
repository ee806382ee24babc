package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/DJune12138/Collection3/internal/app/plugin"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// work pulls requests until the phase context is cancelled or the scheduler
// closes. Cycles run on ctx so an in-flight dispatch is never cut short by
// the end of the phase.
func (e *Engine) work(ctx, phaseCtx context.Context) {
	for {
		req, err := e.sched.Next(phaseCtx)
		if err != nil {
			return
		}
		e.cycle(ctx, req)
		e.obs.SetGauge(ports.MetricQueueLength, float64(e.sched.Len()))
	}
}

// cycle processes one request end to end. Whatever happens, it counts
// exactly one response.
func (e *Engine) cycle(ctx context.Context, req *domain.Request) {
	name := req.Business
	defer func() {
		e.responses.inc()
		e.obs.IncCounter(ports.MetricResponses, 1)
	}()
	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, name, domain.Errorf(domain.KindUnclassified, "cycle", "panic: %v", r))
		}
	}()

	if req.IsNoop() {
		return
	}
	b, ok := e.set.Builders[name]
	if !ok {
		e.fail(ctx, name, domain.Errorf(domain.KindValidationFailure, "cycle", "request owned by unregistered business %q", name))
		return
	}
	dmw := e.set.DownloaderMiddlewares[name]

	req, err := dmw.ProcessRequest(ctx, req)
	if err != nil || req == nil {
		e.failIf(ctx, name, err)
		return
	}
	req.Business = name
	resp, err := e.dl.Dispatch(ctx, req)
	if err != nil {
		e.dispatchFailed(ctx, name, b, req, err)
		return
	}
	if resp, err = dmw.ProcessResponse(ctx, resp); err != nil || resp == nil {
		e.failIf(ctx, name, err)
		return
	}
	resp.Meta = req.Meta
	if resp.Request == nil {
		resp.Request = req
	}
	if resp, err = e.set.BuilderMiddlewares[name].ProcessResponse(ctx, resp); err != nil || resp == nil {
		e.failIf(ctx, name, err)
		return
	}

	fn, err := plugin.Resolve(b.Callbacks(), req.CallbackName())
	if err != nil {
		e.fail(ctx, name, err)
		return
	}
	s, err := plugin.InvokeResponse(ctx, fn, resp)
	if err != nil {
		e.fail(ctx, name, err)
		return
	}
	err = plugin.Drain(req.CallbackName(), s, func(out domain.Output) {
		if out.Request != nil {
			e.enqueue(ctx, name, out.Request)
			return
		}
		e.sink(ctx, name, out.Item)
	}, func(err error) { e.fail(ctx, name, err) })
	if err != nil {
		e.fail(ctx, name, err)
	}
}

// dispatchFailed applies the error routing: parameter errors are recorded
// as they are, backend failures go through the builder's error callback.
func (e *Engine) dispatchFailed(ctx context.Context, name string, b ports.Builder, req *domain.Request, err error) {
	if domain.IsClassified(err) {
		e.fail(ctx, name, err)
		return
	}
	next, cbErr := b.DownloaderErrorCallback(ctx, err, req)
	switch {
	case cbErr != nil:
		e.fail(ctx, name, cbErr)
	case next != nil:
		e.enqueue(ctx, name, next)
	default:
		e.obs.LogWarn("branch_ended",
			ports.Field{Key: "business", Value: name},
			ports.Field{Key: "request_id", Value: req.ID},
			ports.Field{Key: "error", Value: err},
		)
	}
}

// sink hands an item to the business pipeline; requests it yields are enqueued.
func (e *Engine) sink(ctx context.Context, name string, item *domain.Item) {
	op := item.CallbackName()
	fn, err := plugin.Resolve(e.set.Pipelines[name].Callbacks(), op)
	if err != nil {
		e.fail(ctx, name, err)
		return
	}
	s, err := plugin.InvokeItem(ctx, fn, item)
	if err != nil {
		e.fail(ctx, name, err)
		return
	}
	err = plugin.Drain(op, s, func(out domain.Output) {
		if out.Request == nil {
			e.fail(ctx, name, domain.Errorf(domain.KindTypeMismatch, op, "pipeline yielded an item"))
			return
		}
		e.enqueue(ctx, name, out.Request)
	}, func(err error) { e.fail(ctx, name, err) })
	if err != nil {
		e.fail(ctx, name, err)
	}
}

// enqueue stamps req for business name, runs the builder middleware and
// schedules it. It reports whether the request was scheduled.
func (e *Engine) enqueue(ctx context.Context, name string, req *domain.Request) bool {
	req.Business = name
	out, err := e.set.BuilderMiddlewares[name].ProcessRequest(ctx, req)
	if err != nil || out == nil {
		e.failIf(ctx, name, err)
		return false
	}
	out.Business = name
	e.push(out)
	return true
}

// push counts req before it becomes visible to workers.
func (e *Engine) push(req *domain.Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	e.requests.inc()
	e.obs.IncCounter(ports.MetricRequests, 1)
	e.sched.Add(req)
	e.obs.SetGauge(ports.MetricQueueLength, float64(e.sched.Len()))
}

// failIf records err when a middleware returned one; a nil result with no
// error is a deliberate drop.
func (e *Engine) failIf(ctx context.Context, name string, err error) {
	if err != nil {
		e.fail(ctx, name, err)
	}
}
