package spi

import (
	"errors"
	"fmt"
)

// Lifecycle and request errors.
var (
	ErrTransportUnavailable  = errors.New("transport unavailable")
	ErrAlreadyStarted        = errors.New("controller already started")
	ErrNotStarted            = errors.New("controller not started")
	ErrNotInitialized        = errors.New("controller not initialized")
	ErrStopped               = errors.New("controller stopped")
	ErrTransferInProgress    = errors.New("transfer in progress")
	ErrLengthExceedsCapacity = errors.New("length exceeds buffer capacity")
	ErrReceptionOverflow     = errors.New("reception overflow")
)

// TransportError is returned by Init when the transport can't be acquired.
type TransportError struct {
	Role Role
	Err  error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Role, ErrTransportUnavailable, e.Err)
}

// Is matches ErrTransportUnavailable.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportUnavailable
}

// Unwrap returns the cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// LengthError rejects a transfer or reception request larger than a buffer.
type LengthError struct {
	Length   uint32
	Capacity uint32
}

// Error implements error.
func (e *LengthError) Error() string {
	return fmt.Sprintf("%v: %d > %d", ErrLengthExceedsCapacity, e.Length, e.Capacity)
}

// Is matches ErrLengthExceedsCapacity.
func (e *LengthError) Is(target error) bool {
	return target == ErrLengthExceedsCapacity
}

// OverflowError reports a reception longer than the enabled maximum.
// The reception is still completed with all Received bytes.
type OverflowError struct {
	Received uint32
	Max      uint32
}

// Error implements error.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("%v: received %d, max %d", ErrReceptionOverflow, e.Received, e.Max)
}

// Is matches ErrReceptionOverflow.
func (e *OverflowError) Is(target error) bool {
	return target == ErrReceptionOverflow
}
