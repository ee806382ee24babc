// Package observability implements ports.Observability with zap for logs and
// Prometheus for metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Obs routes engine logs to a zap logger and engine metrics to Prometheus
// collectors registered on a caller-supplied registerer.
type Obs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]*prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

var _ ports.Observability = (*Obs)(nil)

// NewObs registers the collection metrics on reg. A nil logger discards logs.
func NewObs(log *zap.Logger, reg prometheus.Registerer) (*Obs, error) {
	if log == nil {
		log = zap.NewNop()
	}
	requests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collection_requests_total",
		Help: "Requests enqueued by seeds, callbacks and pipelines.",
	})
	responses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collection_responses_total",
		Help: "Worker cycles completed, one per dequeued request.",
	})
	alertsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collection_alerts_sent_total",
		Help: "Alerts delivered to the external channel.",
	})
	alertsSuppressed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collection_alerts_suppressed_total",
		Help: "Alerts dropped because the same business and kind alerted within the cooldown.",
	})
	queueGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collection_queue_length",
		Help: "Requests waiting in the scheduler.",
	})
	phaseGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collection_phase",
		Help: "Lifecycle phase currently running.",
	})
	dispatch := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collection_dispatch_duration_seconds",
		Help:    "Backend dispatch latency by way.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"way"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collection_errors_total",
		Help: "Classified failures by kind.",
	}, []string{"kind"})
	for _, k := range domain.Kinds {
		errs.WithLabelValues(k.String())
	}

	for _, c := range []prometheus.Collector{requests, responses, alertsSent, alertsSuppressed, queueGauge, phaseGauge, dispatch, errs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &Obs{
		log: log,
		counters: map[string]prometheus.Counter{
			ports.MetricRequests:         requests,
			ports.MetricResponses:        responses,
			ports.MetricAlertsSent:       alertsSent,
			ports.MetricAlertsSuppressed: alertsSuppressed,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricQueueLength: queueGauge,
			ports.MetricPhase:       phaseGauge,
		},
		histos: map[string]*prometheus.HistogramVec{
			ports.MetricDispatchSeconds: dispatch,
		},
		errors: errs,
	}, nil
}

// Logger returns the underlying zap logger.
func (o *Obs) Logger() *zap.Logger { return o.log }

func (o *Obs) LogInfo(msg string, fields ...ports.Field) {
	o.log.Info(msg, zapFields(fields)...)
}

func (o *Obs) LogWarn(msg string, fields ...ports.Field) {
	o.log.Warn(msg, zapFields(fields)...)
}

func (o *Obs) LogError(msg string, err error, fields ...ports.Field) {
	o.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (o *Obs) LogCritical(msg string, err error, fields ...ports.Field) {
	o.log.Error(msg, append(zapFields(fields), zap.Error(err), zap.Bool("critical", true))...)
}

func (o *Obs) IncCounter(name string, v float64) {
	if c, ok := o.counters[name]; ok {
		c.Add(v)
	}
}

func (o *Obs) ObserveLatency(name string, seconds float64, labels ...string) {
	h, ok := o.histos[name]
	if !ok {
		return
	}
	label := "unknown"
	if len(labels) > 0 && labels[0] != "" {
		label = labels[0]
	}
	h.WithLabelValues(label).Observe(seconds)
}

func (o *Obs) SetGauge(name string, v float64) {
	if g, ok := o.gauges[name]; ok {
		g.Set(v)
	}
}

func (o *Obs) RecordFailure(_ string, kind domain.Kind) {
	o.errors.WithLabelValues(kind.String()).Inc()
}

// Sync flushes buffered log entries.
func (o *Obs) Sync() error { return o.log.Sync() }

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
