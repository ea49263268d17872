package livesync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// waitForCount polls until the counter reaches want or the deadline passes.
func waitForCount(t *testing.T, counter *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if counter.Load() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("recompute count = %d, want %d", counter.Load(), want)
}

func TestCoordinator_DebouncesBurst(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	var count atomic.Int32
	c := NewCoordinator(feed, func(context.Context) error {
		count.Add(1)
		return nil
	}, Options{Debounce: 30 * time.Millisecond})

	c.Start(context.Background())
	defer c.Stop()

	for i := 0; i < 10; i++ {
		feed.Publish(Event{Table: TableActivities, Kind: KindInsert})
	}

	waitForCount(t, &count, 1)
	// Let another debounce window pass: the burst must not produce a second run.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestCoordinator_EventImmediatelyAfterStart(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	var count atomic.Int32
	c := NewCoordinator(feed, func(context.Context) error {
		count.Add(1)
		return nil
	}, Options{Debounce: 10 * time.Millisecond})

	c.Start(context.Background())
	defer c.Stop()

	// The subscription must already be live here: an event published in the
	// same instant Start returns may not be dropped.
	feed.Publish(Event{Table: TableActivities, Kind: KindInsert})

	waitForCount(t, &count, 1)
}

func TestCoordinator_SeparateBurstsSeparateRuns(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	var count atomic.Int32
	c := NewCoordinator(feed, func(context.Context) error {
		count.Add(1)
		return nil
	}, Options{Debounce: 20 * time.Millisecond})

	c.Start(context.Background())
	defer c.Stop()

	feed.Publish(Event{Table: TablePlans, Kind: KindInsert})
	waitForCount(t, &count, 1)

	feed.Publish(Event{Table: TablePlans, Kind: KindUpdate})
	waitForCount(t, &count, 2)
}

func TestCoordinator_EventDuringRecomputeRearms(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	recomputing := make(chan struct{})
	release := make(chan struct{})
	var count atomic.Int32
	c := NewCoordinator(feed, func(context.Context) error {
		if count.Add(1) == 1 {
			close(recomputing)
			<-release
		}
		return nil
	}, Options{Debounce: 10 * time.Millisecond})

	c.Start(context.Background())
	defer c.Stop()

	feed.Publish(Event{Table: TableActivities, Kind: KindInsert})
	<-recomputing

	// Arrives while the first recompute is still running: must not overlap,
	// must trigger exactly one follow-up pass.
	feed.Publish(Event{Table: TableActivities, Kind: KindInsert})
	feed.Publish(Event{Table: TableActivities, Kind: KindInsert})
	close(release)

	waitForCount(t, &count, 2)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(2), count.Load())
}

func TestCoordinator_StopPreventsFurtherRecomputes(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	var count atomic.Int32
	c := NewCoordinator(feed, func(context.Context) error {
		count.Add(1)
		return nil
	}, Options{Debounce: 20 * time.Millisecond})

	c.Start(context.Background())

	feed.Publish(Event{Table: TableActivities, Kind: KindInsert})
	c.Stop()

	after := count.Load()
	feed.Publish(Event{Table: TableActivities, Kind: KindInsert})
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, after, count.Load())
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	c := NewCoordinator(feed, func(context.Context) error { return nil }, Options{})
	c.Start(context.Background())

	c.Stop()
	c.Stop()
}

func TestCoordinator_StopWithoutStartReturns(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	c := NewCoordinator(feed, func(context.Context) error { return nil }, Options{})

	returned := make(chan struct{})
	go func() {
		c.Stop()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Stop on a never-started coordinator did not return")
	}
}

func TestCoordinator_ContextCancelStopsLoop(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewCoordinator(feed, func(context.Context) error { return nil }, Options{})
	c.Start(ctx)

	cancel()
	// Stop still returns promptly after the loop exits on its own.
	c.Stop()
}

func TestCoordinator_FeedCloseStopsLoop(t *testing.T) {
	feed := NewBroadcaster()

	c := NewCoordinator(feed, func(context.Context) error { return nil }, Options{})
	c.Start(context.Background())

	feed.Close()
	c.Stop()
}

func TestCoordinator_MinIntervalFloors(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	var count atomic.Int32
	c := NewCoordinator(feed, func(context.Context) error {
		count.Add(1)
		return nil
	}, Options{Debounce: 5 * time.Millisecond, MinInterval: 150 * time.Millisecond})

	c.Start(context.Background())
	defer c.Stop()

	feed.Publish(Event{Table: TableActivities, Kind: KindInsert})
	waitForCount(t, &count, 1)

	// A second event right away must wait out the interval floor.
	feed.Publish(Event{Table: TableActivities, Kind: KindInsert})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
	waitForCount(t, &count, 2)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	feed := NewBroadcaster()
	defer feed.Close()

	ch, unsubscribe := feed.Subscribe()
	feed.Publish(Event{Table: TablePlans, Kind: KindInsert})

	ev := <-ch
	assert.Equal(t, TablePlans, ev.Table)

	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	unsubscribe()
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	feed := NewBroadcaster()
	feed.Close()

	ch, unsubscribe := feed.Subscribe()
	defer unsubscribe()

	_, open := <-ch
	require.False(t, open)
}
