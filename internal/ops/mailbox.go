// Package ops provides the result-queue primitive shared by all background
// operations. Each dispatched operation owns one goroutine and one Mailbox:
// the goroutine posts zero or more progress messages followed by exactly one
// terminal message, then closes the mailbox. The interactive surface polls
// mailboxes once per tick and never blocks.
package ops

import (
	"sync"

	"github.com/google/uuid"
)

// Mailbox is a single-producer/single-consumer result queue.
//
// Post never blocks, regardless of whether anyone is still polling, so a
// worker whose consumer has lost interest simply fills a queue that is
// garbage collected with it. TryRecv is non-blocking and idempotent: polling
// an empty mailbox is a no-op, and once the mailbox is closed and drained it
// stays exhausted. Message order is preserved.
type Mailbox[T any] struct {
	mu      sync.Mutex
	pending []T
	closed  bool
}

// NewMailbox creates an empty, open mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// Post appends a message to the queue. Posting to a closed mailbox is a
// programming error and panics: the terminal message must be the last send.
func (m *Mailbox[T]) Post(msg T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		panic("ops: Post after Close")
	}
	m.pending = append(m.pending, msg)
}

// Close marks the producer side finished. Pending messages remain
// receivable; the mailbox becomes exhausted once they are drained.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// TryRecv removes and returns the oldest pending message.
// The second return value is false when nothing is pending.
func (m *Mailbox[T]) TryRecv() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.pending) == 0 {
		return zero, false
	}
	msg := m.pending[0]
	// Shift rather than reslice so consumed messages are collectable.
	copy(m.pending, m.pending[1:])
	m.pending[len(m.pending)-1] = zero
	m.pending = m.pending[:len(m.pending)-1]
	return msg, true
}

// Drain removes and returns all pending messages in send order.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil
	}
	out := m.pending
	m.pending = nil
	return out
}

// Exhausted reports whether the producer has closed the mailbox and every
// message has been received. An exhausted mailbox never yields again.
func (m *Mailbox[T]) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed && len(m.pending) == 0
}

// NewID returns a fresh operation identifier, used to correlate a worker's
// log entries with the handle the surface is polling.
func NewID() string {
	return uuid.NewString()
}
