// Package queue provides the bounded message queues that connect router
// tasks. A full or closed queue makes TryPush fail fast instead of blocking,
// so one slow consumer can never stall its producer.
package queue

import (
	"sync"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

// Error is a simple error type for queue errors.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors returned by TryPush.
const (
	// ErrFull is returned when the queue is at capacity.
	ErrFull = Error("queue is full")

	// ErrClosed is returned when the queue has been closed.
	ErrClosed = Error("queue is closed")
)

// DefaultCapacity is the capacity of every inter-task queue unless
// configured otherwise.
const DefaultCapacity = 32

// Queue is a bounded FIFO of messages with a single consumer.
type Queue struct {
	ch     chan message.Message
	mu     sync.RWMutex
	closed bool
}

// New creates a queue. A capacity below one uses DefaultCapacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan message.Message, capacity)}
}

// TryPush enqueues msg without blocking.
func (q *Queue) TryPush(msg message.Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// C returns the receive side of the queue. It is closed after Close once
// every buffered message has been received.
func (q *Queue) C() <-chan message.Message {
	return q.ch
}

// Close marks the queue closed. It is safe to call more than once and
// concurrently with TryPush.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
