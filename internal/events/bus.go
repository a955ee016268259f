// Package events provides the observer primitive shared by the tick engines.
// Dispatch is synchronous and in subscription order: the replay loop depends
// on every listener having seen an event before the next loop step runs, so
// there is no buffered fan-out here.
package events

import "sync"

// Handler consumes one event. A non-nil error is surfaced to the emitter;
// fire-and-forget listeners simply return nil.
type Handler[T any] func(T) error

// Bus fans one event type out to registered handlers.
type Bus[T any] struct {
	mu     sync.Mutex
	nextID int64
	order  []int64
	subs   map[int64]Handler[T]
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int64]Handler[T])}
}

// Subscribe registers a handler and returns its subscription id.
func (b *Bus[T]) Subscribe(h Handler[T]) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = h
	b.order = append(b.order, id)
	return id
}

// Unsubscribe removes a handler by id. Unknown ids are ignored.
func (b *Bus[T]) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of registered handlers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Emit delivers the event to every handler in subscription order and stops at
// the first handler error.
func (b *Bus[T]) Emit(ev T) error {
	b.mu.Lock()
	handlers := make([]Handler[T], 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ev); err != nil {
			return err
		}
	}
	return nil
}
