package events

import (
	"sync"
)

// Stream is the per-request channel between the orchestration run and
// the HTTP writer. It is closed exactly once; after the consumer leaves,
// further events are dropped.
type Stream struct {
	ch chan *Event

	mu     sync.RWMutex
	closed bool

	closeOnce   sync.Once
	abandonOnce sync.Once
	gone        chan struct{}
}

// NewStream creates a stream buffering up to buffer events.
func NewStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{
		ch:   make(chan *Event, buffer),
		gone: make(chan struct{}),
	}
}

// OnEvent implements EventObserver.
func (s *Stream) OnEvent(ev *Event) {
	s.Send(ev)
}

// Send delivers ev unless the stream is closed or abandoned. It blocks
// while the buffer is full and the consumer is still reading.
func (s *Stream) Send(ev *Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case <-s.gone:
		return false
	default:
	}
	select {
	case s.ch <- ev:
		return true
	case <-s.gone:
		return false
	}
}

// Events returns the receive side; it is closed by Close.
func (s *Stream) Events() <-chan *Event {
	return s.ch
}

// Close ends the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Abandon is called by the consumer when the client disconnects.
func (s *Stream) Abandon() {
	s.abandonOnce.Do(func() { close(s.gone) })
}

// Abandoned reports whether the consumer has left.
func (s *Stream) Abandoned() bool {
	select {
	case <-s.gone:
		return true
	default:
		return false
	}
}
