// Package events provides a small typed publish/subscribe bus.
//
// Each client owns one Bus per event type. Handlers run synchronously on the
// publishing goroutine, in subscription order, and must not block. A panic in
// one handler is recovered and reported to the bus's panic hook so the
// remaining handlers still run.
package events

import (
	"sync"
)

// Handler receives a published event.
type Handler[E any] func(E)

// Bus fans a published event out to every subscribed handler.
//
// Thread Safety:
//   - Subscribe, unsubscribe and Publish are safe for concurrent use.
//   - Publish snapshots the handler list, so handlers may subscribe or
//     unsubscribe from within a callback.
type Bus[E any] struct {
	mu       sync.RWMutex
	handlers []entry[E]
	nextID   uint64
	onPanic  func(recovered any)
}

type entry[E any] struct {
	id uint64
	fn Handler[E]
}

// NewBus creates an empty bus. onPanic may be nil.
func NewBus[E any](onPanic func(recovered any)) *Bus[E] {
	return &Bus[E]{onPanic: onPanic}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus[E]) Subscribe(fn Handler[E]) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, entry[E]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[E]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.handlers {
		if e.id == id {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every handler subscribed at the time of the call.
func (b *Bus[E]) Publish(ev E) {
	b.mu.RLock()
	snapshot := b.handlers
	b.mu.RUnlock()

	for _, e := range snapshot {
		b.invoke(e.fn, ev)
	}
}

// Len returns the number of subscribed handlers.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bus[E]) invoke(fn Handler[E], ev E) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(r)
		}
	}()
	fn(ev)
}
