// Package alert delivers engine failure alerts to external channels.
package alert

import (
	"context"
	"fmt"

	"github.com/DJune12138/Collection3/internal/ports"
)

// Format renders an alert as the single text line both channels send.
func Format(a ports.Alert) string {
	return fmt.Sprintf("[collection3] %s business=%s kind=%s: %s",
		a.At.Format("2006-01-02 15:04:05"), a.Business, a.Kind, a.Message)
}

// Nop drops every alert.
type Nop struct{}

var _ ports.Alerter = Nop{}

func (Nop) Send(context.Context, ports.Alert) error { return nil }
