// Package pacer spaces out calls to a rate-limited upstream.
package pacer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the quiet period between consecutive vision calls.
const DefaultInterval = 1500 * time.Millisecond

// Pacer spaces calls to an upstream. Wait is called before each call and
// Done after it returns, successful or not.
type Pacer interface {
	Wait(ctx context.Context) error
	Done()
}

// Interval keeps a quiet period of interval between the end of one call and
// the start of the next. The first call is never delayed, and nothing waits
// after the last one.
type Interval struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	interval time.Duration
}

// NewInterval returns a pacer with the given quiet period. A non-positive
// interval disables pacing.
func NewInterval(interval time.Duration) *Interval {
	if interval <= 0 {
		return &Interval{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Interval{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Wait blocks until the quiet period after the previous call has passed or
// until ctx is done.
func (p *Interval) Wait(ctx context.Context) error {
	p.mu.Lock()
	lim := p.limiter
	p.mu.Unlock()
	return lim.Wait(ctx)
}

// Done restarts the quiet period from now.
func (p *Interval) Done() {
	if p.interval <= 0 {
		return
	}
	lim := rate.NewLimiter(rate.Every(p.interval), 1)
	lim.Allow()
	p.mu.Lock()
	p.limiter = lim
	p.mu.Unlock()
}

// Spacing reports the configured interval.
func (p *Interval) Spacing() time.Duration { return p.interval }

type none struct{}

func (none) Wait(ctx context.Context) error { return ctx.Err() }

func (none) Done() {}

// None never delays.
var None Pacer = none{}

// Factory builds a fresh pacer for one run so that separate imports do not
// share a schedule.
type Factory func() Pacer

// IntervalFactory returns a Factory producing Interval pacers.
func IntervalFactory(interval time.Duration) Factory {
	return func() Pacer { return NewInterval(interval) }
}
