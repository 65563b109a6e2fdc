// Package stream fans a session's raw output chunks out to subscribers.
// Delivery order matches arrival order; marker finalization and sentinel
// detection both depend on first-occurrence-wins semantics downstream.
package stream

import (
	"sync"

	"github.com/Gaurav-Gosain/shellmark/internal/config"
)

// Subscription is one listener on a broadcast stream. Cancel is idempotent:
// racing cleanup paths (timeout vs success) may both call it safely.
type Subscription struct {
	ch   chan []byte
	done chan struct{}

	once       sync.Once
	unregister func()
}

// Chunks returns the channel chunks are delivered on. Receivers should
// select on Done as well; the channel is deliberately never closed while a
// publish may be in flight.
func (s *Subscription) Chunks() <-chan []byte {
	return s.ch
}

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel releases the subscription. Safe to call multiple times and from
// any goroutine.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.unregister()
	})
}

// Broadcaster delivers chunks to all current subscriptions in publish order.
// Publish is expected to be called from a single goroutine per stream.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new listener. Subscriptions created after a chunk
// was published do not see that chunk.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	sub := &Subscription{
		ch:   make(chan []byte, config.SubscriptionBufferSize),
		done: make(chan struct{}),
	}
	sub.unregister = func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}

	if b.closed {
		// Late subscriber on a torn-down stream: hand back an already
		// cancelled subscription rather than one that never fires.
		sub.unregister = func() {}
		sub.Cancel()
		return sub
	}

	b.subs[id] = sub
	return sub
}

// Publish delivers one chunk to every subscriber. The chunk is copied once;
// subscribers treat it as read-only. Delivery to a cancelled subscription is
// abandoned rather than blocking the stream.
func (b *Broadcaster) Publish(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	owned := make([]byte, len(chunk))
	copy(owned, chunk)

	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- owned:
		case <-sub.done:
		}
	}
}

// Close cancels every subscription and rejects future ones. Idempotent.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}
