package window

import "github.com/carlmjohnson/deque"

// EventType identifies a playlist event.
type EventType int

const (
	// EventBaseTimeChanged fires when slot 0 moves. Event.Time carries the new
	// start time.
	EventBaseTimeChanged EventType = iota + 1
	// EventItemDisposed asks the broadcaster to drop the listener registered
	// under Event.Subscriber.
	EventItemDisposed
)

func (t EventType) String() string {
	switch t {
	case EventBaseTimeChanged:
		return "base_time_changed"
	case EventItemDisposed:
		return "item_disposed"
	default:
		return "unknown"
	}
}

// Event is broadcast to every listener of a playlist.
type Event struct {
	Type       EventType
	Time       int64
	Subscriber int
	Flavor     string
}

// Listener receives playlist events.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(Event)

// HandleEvent calls f(e).
func (f ListenerFunc) HandleEvent(e Event) { f(e) }

type subscription struct {
	id int
	l  Listener
}

// Broadcaster is a per-playlist publish/subscribe channel. Emit only queues;
// delivery happens on Flush, after the emitting mutation has finished, so a
// listener never observes a half-applied change and never re-enters it.
type Broadcaster struct {
	subs     []subscription
	next     int
	pending  *deque.Deque[Event]
	flushing bool
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{pending: deque.Make[Event](8)}
}

// Subscribe registers l and returns its id.
func (b *Broadcaster) Subscribe(l Listener) int {
	b.next++
	b.subs = append(b.subs, subscription{id: b.next, l: l})
	return b.next
}

// Unsubscribe removes the listener registered under id. Unknown ids are
// ignored.
func (b *Broadcaster) Unsubscribe(id int) {
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// listeners returns the number of registered listeners.
func (b *Broadcaster) listeners() int {
	return len(b.subs)
}

// Emit queues e for the next Flush.
func (b *Broadcaster) Emit(e Event) {
	b.pending.PushBack(e)
}

// Flush delivers queued events in order. Events emitted by listeners during a
// flush are delivered by the same flush.
func (b *Broadcaster) Flush() {
	if b.flushing {
		return
	}
	b.flushing = true
	defer func() { b.flushing = false }()

	for b.pending.Len() > 0 {
		e, _ := b.pending.RemoveFront()
		subs := append([]subscription(nil), b.subs...)
		for _, s := range subs {
			s.l.HandleEvent(e)
		}
	}
}
