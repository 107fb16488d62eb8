// Package bus provides a bounded single-producer broadcast channel.
//
// Every Receiver keeps its own cursor into a shared ring buffer. Publishing
// never blocks: when a receiver falls more than the buffer capacity behind,
// its next read reports a LaggedError with the exact number of values it
// missed and then resumes from the oldest value still buffered.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by a receiver once the bus is closed and drained,
	// or after the receiver itself was closed.
	ErrClosed = errors.New("bus closed")

	// ErrEmpty is returned by TryRecv when no value is pending.
	ErrEmpty = errors.New("bus empty")
)

// LaggedError reports values overwritten before a receiver could read them.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("receiver lagged: %d messages dropped", e.Missed)
}

// Bus is a fixed-capacity broadcast channel.
type Bus[T any] struct {
	mu        sync.Mutex
	buf       []T
	capacity  uint64
	tail      uint64 // sequence number of the next published value
	receivers int
	closed    bool
	notify    chan struct{} // closed and replaced on every publish and on Close
}

// New creates a bus retaining the last capacity values. Capacity below 1 is
// treated as 1.
func New[T any](capacity int) *Bus[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus[T]{
		buf:      make([]T, capacity),
		capacity: uint64(capacity),
		notify:   make(chan struct{}),
	}
}

// Publish appends v and wakes waiting receivers. It never blocks and returns
// the number of receivers that can observe v; zero is not an error.
func (b *Bus[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}

	b.buf[b.tail%b.capacity] = v
	b.tail++

	close(b.notify)
	b.notify = make(chan struct{})

	return b.receivers
}

// Subscribe returns a receiver positioned after the most recent value.
func (b *Bus[T]) Subscribe() *Receiver[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := &Receiver[T]{bus: b, next: b.tail}
	if b.closed {
		r.closed = true
		return r
	}
	b.receivers++
	return r
}

// ReceiverCount returns the number of open receivers.
func (b *Bus[T]) ReceiverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receivers
}

// Capacity returns the ring size.
func (b *Bus[T]) Capacity() int {
	return int(b.capacity)
}

// Close stops publishing. Receivers drain what is buffered, then get ErrClosed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}

// Receiver is an independent read cursor. A Receiver must not be used from
// more than one goroutine at a time.
type Receiver[T any] struct {
	bus    *Bus[T]
	next   uint64
	closed bool
}

// Recv blocks until a value is available, the bus is closed, or ctx is done.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		r.bus.mu.Lock()
		v, err := r.recvLocked()
		notify := r.bus.notify
		r.bus.mu.Unlock()

		if !errors.Is(err, ErrEmpty) {
			return v, err
		}

		select {
		case <-notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryRecv returns the next value without blocking, or ErrEmpty.
func (r *Receiver[T]) TryRecv() (T, error) {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	return r.recvLocked()
}

// Close detaches the receiver from the bus.
func (r *Receiver[T]) Close() {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.bus.receivers--
}

func (r *Receiver[T]) recvLocked() (T, error) {
	var zero T
	b := r.bus

	if r.closed {
		return zero, ErrClosed
	}

	var oldest uint64
	if b.tail > b.capacity {
		oldest = b.tail - b.capacity
	}
	if r.next < oldest {
		missed := oldest - r.next
		r.next = oldest
		return zero, &LaggedError{Missed: missed}
	}

	if r.next < b.tail {
		v := b.buf[r.next%b.capacity]
		r.next++
		return v, nil
	}

	if b.closed {
		return zero, ErrClosed
	}
	return zero, ErrEmpty
}
