package events

import "sync"

// Change describes a committed store mutation. It carries just enough for a
// subscriber to decide whether to refresh its view.
type Change struct {
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
}

// Bus fans committed-write notifications out to in-process subscribers.
// Delivery is best effort: a subscriber that falls behind misses changes
// rather than blocking writers.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Change
}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan Change{}}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the subscriber goes away; it closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish notifies all current subscribers without blocking.
func (b *Bus) Publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
