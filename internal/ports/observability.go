package ports

import (
	"context"
	"time"

	"github.com/DJune12138/Collection3/internal/domain"
)

// Metric names understood by Observability implementations.
const (
	MetricRequests         = "requests"
	MetricResponses        = "responses"
	MetricAlertsSent       = "alerts_sent"
	MetricAlertsSuppressed = "alerts_suppressed"
	MetricQueueLength      = "queue_length"
	MetricPhase            = "phase"
	// MetricDispatchSeconds is observed with the way as its only label.
	MetricDispatchSeconds = "dispatch_seconds"
)

// Observability is the logging and metrics sink used across the engine.
type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64, labels ...string)
	SetGauge(name string, v float64)

	RecordFailure(business string, kind domain.Kind)
}

type Field struct {
	Key   string
	Value any
}

// Alert is one notification for the external alert channel.
type Alert struct {
	Business string
	Kind     domain.Kind
	Message  string
	At       time.Time
}

// Alerter delivers alerts to an external channel.
type Alerter interface {
	Send(ctx context.Context, a Alert) error
}
