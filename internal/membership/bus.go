// Package membership broadcasts watchlist membership changes to in-process
// listeners. Delivery is synchronous and nothing is replayed.
package membership

import (
	"log/slog"
	"sync"

	"stock_digest/internal/domain"
)

type Listener func(event domain.MembershipChangeEvent)

type subscription struct {
	id       uint64
	listener Listener
}

type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger.With("component", "membership_bus")}
}

// Subscribe registers listener and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (b *Bus) Subscribe(listener Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, listener: listener})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			subs := make([]subscription, 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			b.subs = append(subs, b.subs[i+1:]...)
			return
		}
	}
}

// Publish calls every listener registered at the time of the call, in
// registration order, before returning. Listeners may publish or subscribe
// from inside the callback.
func (b *Bus) Publish(event domain.MembershipChangeEvent) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(s, event)
	}
}

func (b *Bus) dispatch(s subscription, event domain.MembershipChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				"subscription", s.id,
				"symbol", event.Symbol,
				"panic", r,
			)
		}
	}()
	s.listener(event)
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
