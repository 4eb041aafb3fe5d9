package spi

import (
	"github.com/robotalks/pruspi.go/pkg/pru"
)

// Master drives transfers on the bus. Every transfer shifts out the
// producer buffer and shifts in the same number of bytes, which become
// readable through Received once the buffers are swapped.
//
// The lifecycle is Init, Start, any number of StartTransmission, then
// Stop and Wait (or Close).
type Master struct {
	controller
}

// NewMaster creates a master controller.
func NewMaster(config Config) *Master {
	m := &Master{}
	m.setup(RoleMaster, config)
	return m
}

// StartTransmission publishes a transfer of length bytes from the
// producer buffer to the loop. The producer buffer must not be touched
// until the transfer completes.
func (m *Master) StartTransmission(length uint32) error {
	return m.begin(length, 0, length)
}

// Capacity is the largest transfer supported.
func (m *Master) Capacity() uint32 {
	return pru.BufferSize
}
