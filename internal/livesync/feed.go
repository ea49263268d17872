// Package livesync keeps derived rollups fresh as plan, activity, and
// property rows change, coalescing bursts of change notifications into a
// single recompute per debounce window.
package livesync

import "sync"

// Table names a source table a change event belongs to.
type Table string

const (
	TablePlans      Table = "plans"
	TableActivities Table = "activities"
	TableProperties Table = "properties"
)

// Kind is the row operation that produced an event.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event is one row-change notification.
type Event struct {
	Table    Table  `json:"table"`
	Kind     Kind   `json:"kind"`
	AgentRef string `json:"agent_ref,omitempty"`
}

// Feed is a typed source of change events. Subscribe returns a receive
// channel and an unsubscribe func; unsubscribing closes the channel. The
// handle must be called when the consumer goes away or the feed leaks a
// subscriber slot.
type Feed interface {
	Subscribe() (<-chan Event, func())
}

// Broadcaster is an in-process Feed that fans events out to all current
// subscribers. Slow subscribers drop events rather than block the publisher;
// the coordinator only needs to learn that something changed, not see every
// row.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers an event to every subscriber that has buffer room.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close shuts the feed down and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
