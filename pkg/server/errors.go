package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for common connection and server error conditions.
var (
	// ErrConnectionClosed is returned when an operation is attempted on a
	// closed connection, including waits for replies that will never come.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrEventQueueFull is returned when the event queue is full and an
	// event is dropped.
	ErrEventQueueFull = errors.New("server: event queue full")

	// ErrReplyBufferFull is returned when a reply for an unissued message
	// number cannot be buffered.
	ErrReplyBufferFull = errors.New("server: reply buffer full")

	// ErrMaxConnectionsReached is returned when the connection limit is
	// reached.
	ErrMaxConnectionsReached = errors.New("server: max connections reached")

	// ErrNoReply is returned when Call or Stream is used with an
	// instruction that expects no reply.
	ErrNoReply = errors.New("server: instruction expects no reply")

	// ErrRedirectNotAllowed is returned when a handler navigates to an
	// external host missing from AllowedRedirectHosts.
	ErrRedirectNotAllowed = errors.New("server: redirect host not allowed")

	// ErrWriteTimeout is returned when a write operation times out.
	ErrWriteTimeout = errors.New("server: write timeout")
)

// ConnectionError wraps an error with connection context for debugging.
type ConnectionError struct {
	ConnID string
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with connection context.
func (e *ConnectionError) Error() string {
	if e.ConnID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: connection %s: %s: %v", e.ConnID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(connID, op string, err error) *ConnectionError {
	return &ConnectionError{
		ConnID: connID,
		Op:     op,
		Err:    err,
	}
}

// HandlerError reports a handler that returned an error or panicked.
type HandlerError struct {
	ConnID string
	Func   string
	URL    string

	// Err is the returned error; nil for panics.
	Err error

	// Panic and Stack are set when the handler panicked.
	Panic any
	Stack []byte
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("server: handler panic in connection %s, func %s (%s): %v",
			e.ConnID, e.Func, e.URL, e.Panic)
	}
	return fmt.Sprintf("server: handler error in connection %s, func %s (%s): %v",
		e.ConnID, e.Func, e.URL, e.Err)
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsPanic reports whether the handler panicked.
func (e *HandlerError) IsPanic() bool {
	return e.Panic != nil
}

// NewHandlerError creates a new HandlerError.
func NewHandlerError(ev EventInfo, err error, panicVal any, stack []byte) *HandlerError {
	return &HandlerError{
		ConnID: ev.ConnID,
		Func:   ev.Func,
		URL:    ev.URL,
		Err:    err,
		Panic:  panicVal,
		Stack:  stack,
	}
}
