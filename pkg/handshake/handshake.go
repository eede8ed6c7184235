// Package handshake provides a single-slot rendezvous channel between one
// sending worker and one receiving driver.
//
// A sender places exactly one value in the slot per unit of work and, when it
// asks to, waits until the driver has recorded that value before continuing.
// The driver records each value inside Receive, before the sender is released,
// so anything the sender does after Send returns (such as acknowledging a
// message) happens strictly after the driver's bookkeeping.
package handshake

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by Receive when no value arrives within the timeout.
	ErrTimeout = errors.New("handshake: receive timed out")

	// ErrClosed is returned by Receive once the sender has closed the channel
	// and the slot is empty.
	ErrClosed = errors.New("handshake: channel closed")

	// ErrAbandoned is returned by Send when the context ends before the driver
	// recorded the value. The value must be treated as never delivered.
	ErrAbandoned = errors.New("handshake: send abandoned before drain")
)

type envelope[T any] struct {
	value    T
	awaited  bool
	recorded chan struct{}
}

// Channel is a capacity-one channel from worker to driver.
type Channel[T any] struct {
	slot      chan envelope[T]
	closeOnce sync.Once
}

// New creates an empty Channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{slot: make(chan envelope[T], 1)}
}

// Send places v in the slot, blocking while the slot is full. When awaitDrain is
// true it then blocks until the driver has recorded v.
//
// If ctx ends first, Send returns ErrAbandoned. A value the driver recorded is
// never reported as abandoned, even when ctx ends at the same moment.
func (c *Channel[T]) Send(ctx context.Context, v T, awaitDrain bool) error {
	if ctx.Err() != nil {
		return ErrAbandoned
	}
	env := envelope[T]{value: v, awaited: awaitDrain, recorded: make(chan struct{})}

	select {
	case c.slot <- env:
	case <-ctx.Done():
		return ErrAbandoned
	}
	if !awaitDrain {
		return nil
	}

	select {
	case <-env.recorded:
		return nil
	case <-ctx.Done():
		// The driver closes recorded before it cancels ctx, so a recorded value
		// is always visible here.
		select {
		case <-env.recorded:
			return nil
		default:
			return ErrAbandoned
		}
	}
}

// Close is called by the sender when it will send no more values. Values
// already in the slot remain receivable.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() { close(c.slot) })
}

// Receive waits up to timeout for a value (timeout <= 0 waits indefinitely),
// passes it to record, and only then releases the sender.
func (c *Channel[T]) Receive(ctx context.Context, timeout time.Duration, record func(T)) error {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case env, ok := <-c.slot:
		if !ok {
			return ErrClosed
		}
		record(env.value)
		close(env.recorded)
		return nil
	case <-timer:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DrainUnawaited empties the slot after the sender has exited, recording values
// whose sender did not wait for the driver. Values whose sender waited were
// abandoned by it and are discarded. It returns the number of values recorded.
func (c *Channel[T]) DrainUnawaited(record func(T)) int {
	n := 0
	for {
		select {
		case env, ok := <-c.slot:
			if !ok {
				return n
			}
			if !env.awaited {
				record(env.value)
				n++
			}
			close(env.recorded)
		default:
			return n
		}
	}
}
