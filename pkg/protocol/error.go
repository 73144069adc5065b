package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for malformed or unknown wire messages.
var (
	// ErrUnknownInstruction is returned for an instruction name the client
	// runtime does not understand.
	ErrUnknownInstruction = errors.New("protocol: unknown instruction")

	// ErrMissingField is returned when a required field or kwarg is absent.
	ErrMissingField = errors.New("protocol: missing required field")

	// ErrMalformedMessage is returned when a message is not valid JSON or
	// has fields of the wrong type.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrMismatchedElements is returned when a multi-element replacement has
	// a different number of selectors and elements.
	ErrMismatchedElements = errors.New("protocol: selectors and elements differ in length")

	// ErrMessageTooLarge is returned when an inbound message exceeds the
	// connection's read limit (MaxMessageSize by default).
	ErrMessageTooLarge = errors.New("protocol: message too large")
)

// ProtocolError describes a message that could not be decoded.
type ProtocolError struct {
	Op      string // Decoding step that failed
	Message string // Human-readable detail
	Err     error  // Underlying error
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("protocol: %s: %s: %v", e.Op, e.Message, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func newProtocolError(op, message string, err error) *ProtocolError {
	return &ProtocolError{Op: op, Message: message, Err: err}
}
