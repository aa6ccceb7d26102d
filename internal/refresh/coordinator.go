package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxQueue = 50
	DefaultTimeout  = 30 * time.Second
)

// Func is the body of a refresh flight. It must honor ctx cancellation: the
// coordinator cancels ctx when the flight timeout elapses.
type Func func(ctx context.Context) error

// Config tunes a Coordinator. The hook fields are optional observation
// points; nil hooks are skipped. Hooks must not call back into the
// coordinator.
type Config struct {
	// MaxQueue bounds the number of callers queued behind the in-flight
	// leader. Zero means DefaultMaxQueue; negative means no queueing at
	// all (every non-leader is rejected).
	MaxQueue int

	// Timeout bounds each flight. Zero means DefaultTimeout.
	Timeout time.Duration

	// OnFlight fires when a leader starts a network flight.
	OnFlight func()

	// OnEnqueue fires when a caller coalesces behind an in-flight
	// refresh; depth is the queue length after the caller joined.
	OnEnqueue func(depth int)

	// OnReject fires when a caller is turned away with ErrQueueFull.
	OnReject func()

	// OnSettle fires once per flight with its duration and outcome.
	OnSettle func(elapsed time.Duration, err error)
}

// Stats is a point-in-time snapshot of coordinator counters.
type Stats struct {
	Flights   uint64 // network flights started
	Coalesced uint64 // callers served by another caller's flight
	Rejected  uint64 // callers turned away at the queue bound
}

// Coordinator collapses concurrent refresh demands into one network flight
// and fans the outcome out to every caller in arrival order.
type Coordinator struct {
	run      Func
	maxQueue int
	timeout  time.Duration

	onFlight  func()
	onEnqueue func(int)
	onReject  func()
	onSettle  func(time.Duration, error)

	mu       sync.Mutex
	inFlight bool
	leaderCh chan error
	waiters  []chan error

	flights   atomic.Uint64
	coalesced atomic.Uint64
	rejected  atomic.Uint64
}

// New builds a Coordinator around run. Zero Config fields fall back to the
// package defaults.
func New(cfg Config, run Func) *Coordinator {
	maxQueue := cfg.MaxQueue
	switch {
	case maxQueue == 0:
		maxQueue = DefaultMaxQueue
	case maxQueue < 0:
		maxQueue = 0
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		run:       run,
		maxQueue:  maxQueue,
		timeout:   timeout,
		onFlight:  cfg.OnFlight,
		onEnqueue: cfg.OnEnqueue,
		onReject:  cfg.OnReject,
		onSettle:  cfg.OnSettle,
	}
}

// Refresh obtains one settled refresh outcome. The first caller starts a
// flight; concurrent callers join the queue and share that flight's outcome.
// A caller whose ctx ends while waiting unblocks with ctx.Err(), but the
// flight itself keeps going and still settles the remaining callers.
//
// The in-flight claim is taken synchronously, before any suspension point,
// so two racing callers can never both become leader.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if c == nil || c.run == nil {
		return ErrNoRunner
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.inFlight {
		if len(c.waiters) >= c.maxQueue {
			c.mu.Unlock()
			c.rejected.Add(1)
			if c.onReject != nil {
				c.onReject()
			}
			return ErrQueueFull
		}
		ch := make(chan error, 1)
		c.waiters = append(c.waiters, ch)
		depth := len(c.waiters)
		c.mu.Unlock()

		c.coalesced.Add(1)
		if c.onEnqueue != nil {
			c.onEnqueue(depth)
		}
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ch := make(chan error, 1)
	c.inFlight = true
	c.leaderCh = ch
	c.mu.Unlock()

	go c.fly()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fly runs one flight to completion. It is detached from every caller's
// context on purpose: one caller abandoning its wait must not cancel the
// outcome for the rest of the queue.
func (c *Coordinator) fly() {
	c.flights.Add(1)
	if c.onFlight != nil {
		c.onFlight()
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	err := c.run(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrFlightTimeout
	}
	cancel()

	c.settle(err, time.Since(start))
}

// settle swaps the flight state out under the lock, then delivers the
// outcome in arrival order: leader first, queued callers after. Channels
// are buffered so an abandoned caller never blocks delivery to the rest.
func (c *Coordinator) settle(err error, elapsed time.Duration) {
	c.mu.Lock()
	leaderCh := c.leaderCh
	waiters := c.waiters
	c.leaderCh = nil
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	if leaderCh != nil {
		leaderCh <- err
	}
	for _, ch := range waiters {
		ch <- err
	}
	if c.onSettle != nil {
		c.onSettle(elapsed, err)
	}
}

// InFlight reports whether a flight is currently in transit.
func (c *Coordinator) InFlight() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// QueueLen reports how many callers are queued behind the current leader.
func (c *Coordinator) QueueLen() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Timeout reports the per-flight budget the coordinator races against.
func (c *Coordinator) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

// Stats snapshots the coordinator counters.
func (c *Coordinator) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		Flights:   c.flights.Load(),
		Coalesced: c.coalesced.Load(),
		Rejected:  c.rejected.Load(),
	}
}
