// Package rpcerrors collects the typed error values surfaced across the
// Deferred, codec, dispatch, proxy, and protocol layers. Callers match
// against these with errors.Is/errors.As rather than string comparison.
package rpcerrors

import (
	"errors"
	"fmt"
)

var (
	// AlreadyCalled is returned when Succeed, Fail, or Cancel is invoked
	// on a Deferred that has already left the pending state.
	AlreadyCalled = errors.New("deferred: already called")

	// Cancelled is the terminal error a cancelled Deferred resolves to,
	// and is also returned when Succeed/Fail is attempted on one.
	Cancelled = errors.New("deferred: cancelled")

	// Timeout is returned by Deferred.Wait when the deadline elapses
	// before the Deferred reaches a terminal state. The Deferred itself
	// is left untouched.
	Timeout = errors.New("deferred: wait timed out")

	// UnknownMethod is raised by the dispatcher when a call or notify
	// names a method that was never registered.
	UnknownMethod = errors.New("dispatch: unknown method")

	// ConnectionLost is used to fail every in-flight proxy request when
	// a protocol transitions to closed.
	ConnectionLost = errors.New("rpcproto: connection lost")

	// FrameTooLarge is returned by a codec when a frame's declared
	// length exceeds the configured safety cap.
	FrameTooLarge = errors.New("codec: frame exceeds size cap")

	// DecodeError wraps a malformed-frame condition; always fatal to
	// the connection that produced it.
	DecodeError = errors.New("codec: decode error")
)

// RemoteError models a failure reported by the remote end of an RPC
// call. It carries only the raw payload the peer sent back — the
// marshal codec's wire format loses type information, so richer typing
// is not attempted.
type RemoteError struct {
	Payload interface{}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: remote error: %v", e.Payload)
}

// NewRemoteError wraps an arbitrary remote-supplied error payload.
func NewRemoteError(payload interface{}) *RemoteError {
	return &RemoteError{Payload: payload}
}
