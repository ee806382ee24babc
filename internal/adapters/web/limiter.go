package web

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiters holds one rate limiter per key. The first caller of a key passes
// immediately unless the first pass is disabled; every later caller sleeps at
// least the configured interval from its own arrival, and calls on a key stay
// spaced by that interval.
type Limiters struct {
	mu sync.Mutex
	m  map[string]*keyLimiter
}

type keyLimiter struct {
	lim  *rate.Limiter
	seen bool
}

func NewLimiters() *Limiters {
	return &Limiters{m: make(map[string]*keyLimiter)}
}

// Wait blocks until key admits one more call. An empty key is not limited.
func (l *Limiters) Wait(ctx context.Context, key string, every time.Duration, firstPassExempt bool) error {
	if key == "" || every <= 0 {
		return nil
	}
	lim, first := l.admit(key, every)

	now := time.Now()
	at := now
	if !first || !firstPassExempt {
		at = now.Add(every)
	}
	// Reserving at arrival+every makes the token bucket both space calls and
	// charge the full interval to a caller that finds the bucket full.
	r := lim.ReserveN(at, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.CancelAt(time.Now())
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// admit returns the limiter for key and whether this is its first call.
func (l *Limiters) admit(key string, every time.Duration) (*rate.Limiter, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k, ok := l.m[key]
	if !ok {
		k = &keyLimiter{lim: rate.NewLimiter(rate.Every(every), 1)}
		l.m[key] = k
	}
	if k.lim.Limit() != rate.Every(every) {
		k.lim.SetLimit(rate.Every(every))
	}
	first := !k.seen
	k.seen = true
	return k.lim, first
}

// Len returns the number of keys with a limiter.
func (l *Limiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
