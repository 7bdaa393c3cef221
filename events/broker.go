// Package events implements the change-notification streams published by mutable
// repositories.
//
// A Broker fans every published value out to all current subscribers. Each Subscription
// owns an unbounded FIFO queue drained by its own goroutine, so Publish never blocks on a
// slow subscriber and no event is dropped. Events reach a subscriber in publish order.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Source is anything that can hand out subscriptions to a stream of T.
type Source[T any] interface {
	Subscribe() *Subscription[T]
}

// Broker is a multi-subscriber publisher. The zero value is not usable, use NewBroker.
type Broker[T any] struct {
	subs   *xsync.MapOf[uint64, *Subscription[T]]
	nextID atomic.Uint64
	closed atomic.Bool
}

var _ Source[int] = (*Broker[int])(nil)

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{subs: xsync.NewMapOf[uint64, *Subscription[T]]()}
}

// Publish enqueues v for every current subscriber. It never blocks.
func (b *Broker[T]) Publish(v T) {
	if b.closed.Load() {
		return
	}
	b.subs.Range(func(_ uint64, s *Subscription[T]) bool {
		s.push(v)
		return true
	})
}

// Subscribe registers a new subscriber. Events published before the call are not replayed.
// Subscribing to a closed broker returns an already closed subscription.
func (b *Broker[T]) Subscribe() *Subscription[T] {
	s := newSubscription[T](b.nextID.Add(1), b)
	if b.closed.Load() {
		s.Close()
		return s
	}
	b.subs.Store(s.id, s)
	if b.closed.Load() {
		// Close ran between the check above and Store and may have missed s
		s.Close()
		return s
	}
	go s.pump()
	return s
}

// Subscribers returns the number of active subscriptions.
func (b *Broker[T]) Subscribers() int {
	return b.subs.Size()
}

// Close closes every subscription and rejects further publishing.
func (b *Broker[T]) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.subs.Range(func(_ uint64, s *Subscription[T]) bool {
		s.Close()
		return true
	})
}

func (b *Broker[T]) remove(id uint64) {
	b.subs.Delete(id)
}

// Subscription is a single consumer of a Broker.
type Subscription[T any] struct {
	id     uint64
	broker *Broker[T]

	mu     sync.Mutex
	queue  []T
	notify chan struct{}

	out       chan T
	done      chan struct{}
	closeOnce sync.Once
	pumping   atomic.Bool
}

func newSubscription[T any](id uint64, b *Broker[T]) *Subscription[T] {
	return &Subscription[T]{
		id:     id,
		broker: b,
		notify: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Close detaches the subscription from its broker. Queued but undelivered events are discarded.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.broker != nil {
			s.broker.remove(s.id)
		}
		if !s.pumping.Load() {
			// pump never started, so nobody else will close out
			if s.pumping.CompareAndSwap(false, true) {
				close(s.out)
			}
		}
	})
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	if !s.pumping.CompareAndSwap(false, true) {
		return
	}
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		var zero T
		item := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- item:
		case <-s.done:
			return
		}
	}
}

// Consume calls fn for every event delivered to sub until ctx is done or the
// subscription closes. The subscription is closed on return.
func Consume[T any](ctx context.Context, sub *Subscription[T], fn func(T)) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C():
			if !ok {
				return
			}
			fn(v)
		}
	}
}
