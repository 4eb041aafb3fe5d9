package pru

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnavailable indicates the transport can't be acquired,
// e.g. the device or its firmware is missing.
var ErrUnavailable = errors.New("transport unavailable")

// ErrClosed indicates the transport is already closed.
var ErrClosed = errors.New("transport closed")

// Transport moves the bytes of a Context over the wire.
//
// Once armed with a buffer and a length it eventually reports completion
// with the full number of bytes moved, or an error. It never reports a
// silent short transfer. After a controller starts, only its loop
// goroutine calls Arm and Poll.
type Transport interface {
	io.Closer
	// Context returns the shared region the transport reads and writes.
	Context() *Context
	// Arm hands the buffer at index to the device for a transfer of
	// length bytes, accepting at most maxLength bytes (0 means no limit).
	Arm(index int, length, maxLength uint32) error
	// Poll reports whether the armed transfer completed and how many bytes
	// were moved. It never blocks.
	Poll() (n uint32, done bool, err error)
}

// Opener acquires a Transport.
type Opener func() (Transport, error)

// DeviceError is a failure reported by the device for a transfer.
type DeviceError struct {
	Code uint32
}

// Error implements error.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error %d", e.Code)
}

func unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}
