package observability

import (
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Nop discards logs and metrics.
type Nop struct{}

var _ ports.Observability = Nop{}

func (Nop) LogInfo(string, ...ports.Field) {}
func (Nop) LogWarn(string, ...ports.Field) {}
func (Nop) LogError(string, error, ...ports.Field) {}
func (Nop) LogCritical(string, error, ...ports.Field) {}
func (Nop) IncCounter(string, float64) {}
func (Nop) ObserveLatency(string, float64, ...string) {}
func (Nop) SetGauge(string, float64) {}
func (Nop) RecordFailure(string, domain.Kind) {}
