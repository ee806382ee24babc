package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DJune12138/Collection3/internal/app/plugin"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// runPhase seeds every business, runs the worker set and returns once every
// counted request has completed a cycle.
func (e *Engine) runPhase(ctx context.Context, phase int) error {
	watermark := e.responses.get()
	e.obs.SetGauge(ports.MetricPhase, float64(phase))
	e.obs.LogInfo("phase_started", ports.Field{Key: "phase", Value: phase})

	phaseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var seeders errgroup.Group
	for _, name := range e.names {
		seeders.Go(func() error {
			e.seed(ctx, phase, name)
			return nil
		})
	}
	seeded := make(chan struct{})
	go func() {
		_ = seeders.Wait()
		close(seeded)
	}()

	var workers errgroup.Group
	for i := 0; i < e.pol.Workers(len(e.names)); i++ {
		workers.Go(func() error {
			e.work(ctx, phaseCtx)
			return nil
		})
	}
	stopped := make(chan struct{})
	go func() {
		_ = workers.Wait()
		close(stopped)
	}()

	ticker := time.NewTicker(e.pol.PollInterval)
	defer ticker.Stop()
	for !e.complete(seeded, watermark) {
		select {
		case <-ctx.Done():
			cancel()
			<-seeded
			<-stopped
			return ctx.Err()
		case <-stopped:
			if e.complete(seeded, watermark) {
				break
			}
			<-seeded
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("phase %d: workers stopped with %d of %d requests outstanding",
				phase, e.requests.get()-e.responses.get(), e.requests.get())
		case <-ticker.C:
		}
	}

	cancel()
	<-stopped
	e.obs.LogInfo("phase_completed",
		ports.Field{Key: "phase", Value: phase},
		ports.Field{Key: "requests", Value: e.requests.get()},
		ports.Field{Key: "responses", Value: e.responses.get()},
	)
	return nil
}

// complete is read in this order on purpose: responses never exceed requests,
// so once seeding is over, responses >= requests means nothing is queued or
// in flight.
func (e *Engine) complete(seeded <-chan struct{}, watermark int64) bool {
	select {
	case <-seeded:
	default:
		return false
	}
	responses := e.responses.get()
	return responses >= e.requests.get() && responses > watermark
}

// seed runs the phase hook of one business and enqueues what it yields. A
// business that enqueues nothing gets one noop request so its lineage
// completes a cycle.
func (e *Engine) seed(ctx context.Context, phase int, name string) {
	op := seedOp(phase)
	enqueued := 0
	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, name, domain.Errorf(domain.KindUnclassified, op, "panic: %v", r))
		}
		if enqueued == 0 {
			e.valve(name)
		}
	}()

	hook, err := e.hook(phase, name)
	if err != nil {
		e.fail(ctx, name, err)
		return
	}
	if hook == nil {
		return
	}
	s, err := plugin.InvokeSeed(ctx, hook)
	if err != nil {
		e.fail(ctx, name, err)
		return
	}
	err = plugin.Drain(op, s, func(out domain.Output) {
		if out.Item != nil {
			e.fail(ctx, name, domain.Errorf(domain.KindTypeMismatch, op, "seed yielded an item"))
			return
		}
		if e.enqueue(ctx, name, out.Request) {
			enqueued++
		}
	}, func(err error) { e.fail(ctx, name, err) })
	if err != nil {
		e.fail(ctx, name, err)
	}
}

// hook picks the seed function of business name for phase. A nil hook with a
// nil error means the business does not implement the phase.
func (e *Engine) hook(phase int, name string) (ports.SeedFunc, error) {
	b := e.set.Builders[name]
	if phase > 0 {
		return endHook(b, phase)
	}
	if e.set.Options[name].AutoCollect {
		ac, ok := b.(ports.AutoCollector)
		if !ok {
			return nil, domain.Errorf(domain.KindValidationFailure, "auto_collect", "business is flagged for auto collection but does not implement it")
		}
		return ac.AutoCollect, nil
	}
	return b.StartRequests, nil
}

func endHook(b ports.Builder, phase int) (hook ports.SeedFunc, err error) {
	er, ok := b.(ports.EndRequester)
	if !ok {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			hook, err = nil, domain.Errorf(domain.KindUnclassified, seedOp(phase), "EndRequests panic: %v", r)
		}
	}()
	hooks := er.EndRequests()
	if phase-1 < len(hooks) {
		return hooks[phase-1], nil
	}
	return nil, nil
}

func seedOp(phase int) string {
	if phase == 0 {
		return "start_requests"
	}
	return fmt.Sprintf("end_requests_%d", phase)
}

// valve enqueues the noop request that lets an idle lineage finish the phase.
func (e *Engine) valve(name string) {
	req := domain.NewRequest(domain.WayTest, nil).WithCallback(domain.NoopCallback)
	req.Business = name
	e.push(req)
}
