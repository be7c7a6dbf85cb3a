// Package watch provides the subscription plumbing shared by the store backends.
package watch

import (
	"context"
	"sync"
)

// BufferSize is the number of undelivered snapshots a subscriber may lag behind.
const BufferSize = 8

// Sink is a buffered subscription channel that never blocks the publisher:
// when the subscriber falls behind, the oldest pending snapshot is dropped.
type Sink struct {
	ch     chan any
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewSink() *Sink {
	return &Sink{
		ch:   make(chan any, BufferSize),
		done: make(chan struct{}),
	}
}

// C is the receive side handed to the subscriber.
func (s *Sink) C() <-chan any {
	return s.ch
}

// Done is closed once the sink is closed.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Send delivers v, replacing the oldest pending value if the buffer is full.
func (s *Sink) Send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- v:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- v
	}
}

// Close stops delivery and closes the channel. It is safe to call more than once.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// CancelOnDone runs cancel when ctx ends, unless the sink closes first.
func CancelOnDone(ctx context.Context, s *Sink, cancel func()) {
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-s.Done():
		}
	}()
}
