package event

import (
	"sync"
	"sync/atomic"
	"time"

	"loom/internal/logging"
)

// Handler receives one event. A subscriber's handler is always run to
// completion before that subscriber's next event is dispatched.
type Handler func(Event)

const subscriberBuffer = 128

type subscriber struct {
	kinds   map[Kind]struct{} // nil matches every kind
	ch      chan Event
	handler Handler
}

func (s *subscriber) wants(kind Kind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Bus is an ordered, asynchronous publish/subscribe dispatcher.
//
// Ordering contract: events are delivered to each subscriber in publish
// order, and one subscriber's handler never runs concurrently with itself.
// Independent subscribers are notified concurrently. Publish never reorders:
// when a subscriber lags, Publish blocks rather than drop or shuffle.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	seq    atomic.Uint64
	closed bool
	wg     sync.WaitGroup
	logger logging.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{logger: logging.OrNop(logger)}
}

// Subscribe registers a handler for the given kinds; with no kinds it
// receives every event. Subscription is expected before the run starts.
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) {
	if handler == nil {
		return
	}
	sub := &subscriber{
		ch:      make(chan Event, subscriberBuffer),
		handler: handler,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("Subscribe called on closed bus, ignoring")
		return
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range sub.ch {
			sub.handler(ev)
		}
	}()
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(handler Handler) {
	b.Subscribe(handler)
}

// Publish stamps the event with the next sequence number and the current
// time, then fans it out. The stamped event is returned so callers can log
// or persist the exact record subscribers saw.
func (b *Bus) Publish(ev Event) Event {
	ev.Seq = b.seq.Add(1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Warn("Publish on closed bus dropped: %s", ev.Kind)
		return ev
	}
	for _, sub := range b.subs {
		if sub.wants(ev.Kind) {
			sub.ch <- ev
		}
	}
	return ev
}

// Close stops accepting events and blocks until every subscriber has drained
// its queue and finished its final handler.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	b.wg.Wait()
}
