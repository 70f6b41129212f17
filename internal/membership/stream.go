package membership

import (
	"sync"
	"sync/atomic"

	"stock_digest/internal/domain"
)

// Stream forwards one account's events to a buffered channel for consumers
// that cannot run inside Publish, such as an HTTP event stream. When the
// buffer is full the event is dropped.
type Stream struct {
	ch          chan domain.MembershipChangeEvent
	dropped     atomic.Int64
	unsubscribe func()

	mu     sync.Mutex
	closed bool
}

func NewStream(bus *Bus, accountID string, buffer int) *Stream {
	if buffer <= 0 {
		buffer = 1
	}
	s := &Stream{ch: make(chan domain.MembershipChangeEvent, buffer)}
	s.unsubscribe = bus.Subscribe(func(event domain.MembershipChangeEvent) {
		if event.AccountID != accountID {
			return
		}
		s.send(event)
	})
	return s
}

func (s *Stream) send(event domain.MembershipChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
		s.dropped.Add(1)
	}
}

func (s *Stream) Events() <-chan domain.MembershipChangeEvent {
	return s.ch
}

func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes from the bus and closes the channel.
func (s *Stream) Close() {
	s.unsubscribe()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
