package pager

import (
	"context"
	"iter"
	"sync"
)

// Broadcast holds the latest value of an engine output and delivers every
// published value, in order, to all subscribers.
//
// Unlike a plain channel, a new subscriber first receives the current value
// and then every later update. Publishing never blocks: each subscriber owns
// an unbounded queue, so a slow reader cannot stall the engine loop.
//
// Values are shared between subscribers and must not be modified.
type Broadcast[T any] struct {
	mu     sync.Mutex
	latest T
	subs   map[int64]*subscription[T]
	nextID int64
	closed bool
}

type subscription[T any] struct {
	mu     sync.Mutex
	queue  []T
	notify chan struct{}
	done   chan struct{}
}

// NewBroadcast creates a Broadcast with the given initial value.
func NewBroadcast[T any](initial T) *Broadcast[T] {
	return &Broadcast[T]{
		latest: initial,
		subs:   make(map[int64]*subscription[T]),
	}
}

// Latest returns the most recently published value.
func (b *Broadcast[T]) Latest() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Publish stores value as the latest and queues it for every subscriber.
// Publishing after Close is a no-op.
func (b *Broadcast[T]) Publish(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.latest = value
	for _, sub := range b.subs {
		sub.push(value)
	}
}

// Close ends all subscriptions once their queued values are delivered.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.done)
	}
}

// Subscribe returns an iterator that yields the current value followed by
// every later update until ctx is done, the consumer stops, or the
// broadcast is closed. Each range over the iterator is an independent
// subscription starting from the value current at that moment.
func (b *Broadcast[T]) Subscribe(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		b.mu.Lock()
		current := b.latest
		if b.closed {
			b.mu.Unlock()
			yield(current)
			return
		}
		sub := &subscription[T]{
			notify: make(chan struct{}, 1),
			done:   make(chan struct{}),
		}
		id := b.nextID
		b.nextID++
		b.subs[id] = sub
		b.mu.Unlock()

		defer b.unsubscribe(id)

		if !yield(current) {
			return
		}

		for {
			closed := false
			select {
			case <-ctx.Done():
				return
			case <-sub.notify:
			case <-sub.done:
				closed = true
			}

			for _, v := range sub.drain() {
				if !yield(v) {
					return
				}
			}
			if closed {
				return
			}
		}
	}
}

func (b *Broadcast[T]) unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (s *subscription[T]) push(value T) {
	s.mu.Lock()
	s.queue = append(s.queue, value)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription[T]) drain() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.queue
	s.queue = nil
	return queued
}
