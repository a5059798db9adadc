package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const defaultBufferSize = 256

// Subscription receives committed events that match its filter.
type Subscription struct {
	id      string
	filter  *Filter
	ch      chan Event
	bus     *Bus
	once    sync.Once
	dropped atomic.Int64
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Events returns the delivery channel. It is closed on Cancel or Bus.Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Cancel detaches the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.bus.remove(s.id)
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Bus fans committed events out to in-process subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a subscriber. filter may be nil to receive everything.
// bufferSize <= 0 selects the default.
func (b *Bus) Subscribe(filter *Filter, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	s := &Subscription{
		id:     uuid.NewString(),
		filter: filter,
		ch:     make(chan Event, bufferSize),
		bus:    b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.close()
		return s
	}
	b.subs[s.id] = s
	return s
}

// Publish delivers evs in order to every matching subscriber.
func (b *Bus) Publish(evs []Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for i := range evs {
		ev := evs[i]
		for _, s := range b.subs {
			if s.filter != nil && !s.filter.Match(&ev) {
				continue
			}
			select {
			case s.ch <- ev:
			default:
				if s.dropped.Add(1) == 1 {
					slog.Warn("event subscriber lagging, dropping events", "subscription", s.id)
				}
			}
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close cancels every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		s.close()
		delete(b.subs, id)
	}
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		s.close()
		delete(b.subs, id)
	}
}
