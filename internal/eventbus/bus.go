// Package eventbus is a small typed publish/subscribe hub.
package eventbus

import "sync"

type Handler[T any] func(T)

type subscriber[T any] struct {
	id int
	fn Handler[T]
}

// Bus delivers every published value to all current subscribers, in
// subscription order, on the publisher's goroutine.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   []subscriber[T]
	nextID int
}

func New[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers fn and returns the function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus[T]) Subscribe(fn Handler[T]) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber[T]{id: id, fn: fn})
	b.mu.Unlock()

	return func() { b.remove(id) }
}

func (b *Bus[T]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus[T]) Publish(v T) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := make([]subscriber[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		s.fn(v)
	}
}

func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
