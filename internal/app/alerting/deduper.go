// Package alerting forwards classified failures to an alert channel, at most
// once per business and kind within a cooldown window.
package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Fingerprint identifies a failure class for deduplication.
func Fingerprint(business string, kind domain.Kind) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(business)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(kind.String())
	return h.Sum64()
}

// Deduper wraps an Alerter so identical fingerprints are sent once per cooldown.
type Deduper struct {
	next     ports.Alerter
	obs      ports.Observability
	cooldown time.Duration
	seen     *ttlcache.Cache[uint64, time.Time]
	now      func() time.Time
}

var _ ports.Alerter = (*Deduper)(nil)

// NewDeduper starts the expiry loop of the window store; call Close to stop it.
// A non-positive cooldown disables deduplication.
func NewDeduper(next ports.Alerter, cooldown time.Duration, obs ports.Observability) *Deduper {
	seen := ttlcache.New[uint64, time.Time](
		ttlcache.WithTTL[uint64, time.Time](cooldown),
		ttlcache.WithDisableTouchOnHit[uint64, time.Time](),
	)
	go seen.Start()
	return &Deduper{next: next, obs: obs, cooldown: cooldown, seen: seen, now: time.Now}
}

// Send forwards a unless its fingerprint alerted within the cooldown. A
// failed delivery releases the fingerprint so the next failure retries.
func (d *Deduper) Send(ctx context.Context, a ports.Alert) error {
	if a.At.IsZero() {
		a.At = d.now()
	}
	if d.cooldown > 0 {
		fp := Fingerprint(a.Business, a.Kind)
		if _, found := d.seen.GetOrSet(fp, a.At); found {
			d.inc(ports.MetricAlertsSuppressed)
			return nil
		}
		if err := d.next.Send(ctx, a); err != nil {
			d.seen.Delete(fp)
			return err
		}
		d.inc(ports.MetricAlertsSent)
		return nil
	}
	if err := d.next.Send(ctx, a); err != nil {
		return err
	}
	d.inc(ports.MetricAlertsSent)
	return nil
}

// Report turns a classified failure into an alert. Delivery errors are
// logged, never returned, since alerting must not affect the worker cycle.
func (d *Deduper) Report(ctx context.Context, business string, err error) {
	if err == nil {
		return
	}
	a := ports.Alert{Business: business, Kind: domain.KindOf(err), Message: err.Error(), At: d.now()}
	if sendErr := d.Send(ctx, a); sendErr != nil && d.obs != nil && !errors.Is(sendErr, context.Canceled) {
		d.obs.LogWarn("alert_delivery_failed",
			ports.Field{Key: "business", Value: business},
			ports.Field{Key: "kind", Value: a.Kind.String()},
			ports.Field{Key: "error", Value: sendErr},
		)
	}
}

func (d *Deduper) inc(metric string) {
	if d.obs != nil {
		d.obs.IncCounter(metric, 1)
	}
}

// Close stops the expiry loop.
func (d *Deduper) Close() {
	d.seen.Stop()
}
