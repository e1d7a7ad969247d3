package concurrency

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMailboxClosed is returned when trying to send/receive on a closed mailbox.
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrMailboxFull is returned when trying to send to a full mailbox (backpressure).
	ErrMailboxFull = errors.New("mailbox is full")

	// ErrMailboxEmpty is returned when trying to receive from an empty mailbox (non-blocking).
	ErrMailboxEmpty = errors.New("mailbox is empty")
)

// Mailbox abstracts channel operations behind a message-passing API.
// pkg/reactor uses one as its own inbound closure queue: every Post/
// PostTimeout call is a Send, and the reactor's run loop is the sole
// Receive-r, so the channel and its select statements never leak
// outside this package.
type Mailbox interface {
	// Send sends a message to the mailbox.
	// Returns ErrMailboxFull if mailbox is full (backpressure).
	// Returns ErrMailboxClosed if mailbox is closed.
	Send(msg interface{}) error

	// SendTimeout is Send with a bounded wait for queue room instead of
	// immediate rejection. Returns ErrMailboxFull if d elapses first.
	SendTimeout(msg interface{}, d time.Duration) error

	// Receive receives a message from the mailbox.
	// Blocks until a message is available or ctx is cancelled.
	// Returns ErrMailboxClosed once the mailbox is closed and drained.
	Receive(ctx context.Context) (interface{}, error)

	// TryReceive attempts to receive a message without blocking.
	// Returns (msg, true, nil) if a message is available, (nil, false, nil) if empty.
	// Returns ErrMailboxClosed if closed and drained.
	TryReceive() (interface{}, bool, error)

	// Close closes the mailbox.
	// After closing, Send/SendTimeout return ErrMailboxClosed; Receive/
	// TryReceive keep draining whatever was already buffered first.
	Close()

	// Capacity returns the maximum capacity of the mailbox.
	Capacity() int

	// Size returns the current number of buffered messages.
	Size() int

	// IsClosed returns true if the mailbox is closed.
	IsClosed() bool
}
