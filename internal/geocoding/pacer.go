package geocoding

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for the Pacer.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// After implements Clock.
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Pacer enforces a minimum delay between successive provider calls. One
// Pacer is shared by every row of a run.
type Pacer struct {
	mu     sync.Mutex
	delay  time.Duration
	clock  Clock
	last   time.Time
	called bool
}

// NewPacer creates a Pacer. A nil clock means SystemClock; a non-positive
// delay makes Wait a no-op.
func NewPacer(delay time.Duration, clock Clock) *Pacer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pacer{delay: delay, clock: clock}
}

// Delay returns the configured minimum interval.
func (p *Pacer) Delay() time.Duration {
	if p == nil {
		return 0
	}
	return p.delay
}

// Wait blocks until at least the configured delay has elapsed since the
// previous Wait returned. The first call returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.delay <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.called {
		if remaining := p.delay - p.clock.Now().Sub(p.last); remaining > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.clock.After(remaining):
			}
		}
	}
	p.last = p.clock.Now()
	p.called = true
	return nil
}
