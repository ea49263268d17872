package livesync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultDebounce matches the burst window rapid successive writes (for
// example an offline-sync flush) tend to arrive in.
const DefaultDebounce = 500 * time.Millisecond

// Options tunes a Coordinator.
type Options struct {
	// Debounce is how long the coordinator waits after the last event
	// before recomputing. Zero means DefaultDebounce.
	Debounce time.Duration
	// MinInterval is a floor on time between recomputes under sustained
	// churn, enforced even when individual events keep escaping the
	// debounce window. Zero disables the floor.
	MinInterval time.Duration
}

// Coordinator is a two-state machine (idle, pending-recompute) that turns a
// stream of change events into at-most-one recompute per quiet period.
// Recomputes never overlap: events arriving mid-recompute re-arm the
// debounce timer instead of starting a second pass.
type Coordinator struct {
	feed      Feed
	recompute func(context.Context) error
	debounce  time.Duration
	limiter   *rate.Limiter

	startOnce sync.Once
	started   atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewCoordinator wires a feed to a recompute callback. The callback runs at
// most once at a time and never after Stop returns.
func NewCoordinator(feed Feed, recompute func(context.Context) error, opts Options) *Coordinator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	var limiter *rate.Limiter
	if opts.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	return &Coordinator{
		feed:      feed,
		recompute: recompute,
		debounce:  debounce,
		limiter:   limiter,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start subscribes to the feed and launches the coordinator loop. The
// subscription is established before Start returns, so events published the
// moment it does are already captured. The loop ends when ctx is cancelled,
// Stop is called, or the feed closes. Start is a no-op on the second call.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		events, unsubscribe := c.feed.Subscribe()
		c.started.Store(true)
		go c.run(ctx, events, unsubscribe)
	})
}

// Stop tears the coordinator down: the timer is stopped, the subscription
// released, and any in-flight recompute cancelled and waited for. No
// recompute runs after Stop returns. Stop on a coordinator that was never
// started returns immediately.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if !c.started.Load() {
		return
	}
	<-c.done
}

func (c *Coordinator) run(ctx context.Context, events <-chan Event, unsubscribe func()) {
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)

	timer := time.NewTimer(c.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	var (
		pending  bool       // an event arrived and the timer is armed
		inFlight bool       // a recompute goroutine is running
		rearm    bool       // events arrived mid-recompute
		doneCh   chan error // current recompute's completion channel
		wg       sync.WaitGroup
	)

	// Teardown order matters: cancel the in-flight recompute before waiting
	// for it, then release the subscription and timer.
	defer func() {
		cancel()
		wg.Wait()
		unsubscribe()
		timer.Stop()
	}()

	arm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.debounce)
		pending = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return

		case _, ok := <-events:
			if !ok {
				return
			}
			if inFlight {
				rearm = true
				continue
			}
			arm()

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false

			if c.limiter != nil {
				res := c.limiter.Reserve()
				if delay := res.Delay(); delay > 0 {
					res.Cancel()
					timer.Reset(delay)
					pending = true
					continue
				}
			}

			inFlight = true
			doneCh = make(chan error, 1)
			wg.Add(1)
			go func(ch chan error) {
				defer wg.Done()
				ch <- c.recompute(ctx)
			}(doneCh)

		case err := <-doneCh:
			inFlight = false
			doneCh = nil
			if err != nil && ctx.Err() == nil {
				zap.L().Error("livesync: recompute failed", zap.Error(err))
			}
			if rearm {
				rearm = false
				arm()
			}
		}
	}
}
