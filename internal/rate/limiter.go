// Package rate paces outbound platform calls.
//
// Limiter is a leaky bucket: instead of counting available tokens it
// tracks when the next call may start. Callers that fall behind schedule
// proceed immediately; callers ahead of schedule sleep until their slot.
// Bursts are bounded by MaxBurst (1 means strictly evenly spaced calls).
//
// Limiter is safe for concurrent use.
//
//	l := rate.NewLimiter(5) // five calls per second
//	if err := l.Wait(ctx); err != nil {
//	    return err
//	}
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter schedules calls at a fixed rate.
type Limiter struct {
	rate        float64
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64
	mu          sync.Mutex

	scheduled atomic.Int64
	waited    atomic.Int64
}

// NewLimiter creates a limiter allowing rps calls per second.
// Non-positive rates fall back to one call per second.
func NewLimiter(rps float64) *Limiter {
	return NewLimiterWithBurst(rps, 1)
}

// NewLimiterWithBurst creates a limiter that may run up to burst calls
// back to back after an idle period.
func NewLimiterWithBurst(rps, burst float64) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rate:     rps,
		lastDrip: time.Now(),
		maxBurst: burst,
	}
}

// Reserve returns the time at which the next call may start. The time
// is in the past (or now) when the caller may proceed immediately.
func (l *Limiter) Reserve() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	l.accumulated += elapsed * l.rate
	if l.accumulated > l.maxBurst {
		l.accumulated = l.maxBurst
	}

	l.scheduled.Add(1)

	if l.accumulated >= 1 {
		l.accumulated--
		l.lastDrip = now
		return now
	}

	wait := time.Duration((1 - l.accumulated) / l.rate * float64(time.Second))
	l.accumulated = 0

	// lastDrip moves to the reserved slot so that waking up at that slot
	// does not credit the sleep a second time.
	next := now.Add(wait)
	l.lastDrip = next
	l.waited.Add(int64(wait))

	return next
}

// Wait blocks until the caller's slot, or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	d := time.Until(l.Reserve())
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats describes limiter activity.
type Stats struct {
	Rate      float64       `json:"rate"`
	MaxBurst  float64       `json:"maxBurst"`
	Scheduled int64         `json:"scheduled"`
	Waited    time.Duration `json:"waited"`
}

// Stats returns a snapshot of limiter activity.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	r, burst := l.rate, l.maxBurst
	l.mu.Unlock()

	return Stats{
		Rate:      r,
		MaxBurst:  burst,
		Scheduled: l.scheduled.Load(),
		Waited:    time.Duration(l.waited.Load()),
	}
}
