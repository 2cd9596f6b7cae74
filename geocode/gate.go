package geocode

import (
	"context"
	"time"

	"github.com/juju/clock"
)

// Gate serialises outbound requests and keeps at least interval between the
// end of one request and the start of the next. One Gate is shared by every
// caller in the process.
type Gate struct {
	clock    clock.Clock
	interval time.Duration

	// sem is held for the whole wait+request so waiters queue up behind it.
	sem  chan struct{}
	last time.Time
}

func NewGate(clk clock.Clock, interval time.Duration) *Gate {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Gate{
		clock:    clk,
		interval: interval,
		sem:      make(chan struct{}, 1),
	}
}

// Do waits for the gate and runs fn. The returned duration is the time spent
// waiting before fn started.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) (time.Duration, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { <-g.sem }()

	var waited time.Duration
	if !g.last.IsZero() {
		if wait := g.interval - g.clock.Now().Sub(g.last); wait > 0 {
			select {
			case <-g.clock.After(wait):
				waited = wait
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}

	err := fn(ctx)
	g.last = g.clock.Now()
	return waited, err
}
