package pru

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// BufferSize is the capacity of each transfer buffer in bytes.
const BufferSize = 0x400

// Context is the double-buffered region shared between a controller loop
// and the code orchestrating it. Its layout is fixed so that it can be
// overlaid onto PRU data RAM; the device firmware sees the same fields.
//
// Buffers[Buffer] belongs to the producer (it is written by the caller and
// shifted out by the transport), Buffers[Buffer^1] belongs to the consumer.
// The byte buffers are never locked: a buffer is only touched by the party
// currently owning it, and ownership changes hands through Busy.
// Scalar fields must only be accessed through the methods below.
type Context struct {
	Buffers    [2][BufferSize]byte
	Buffer     uint32
	Size       uint32
	MaxReceive uint32
	Busy       uint32
}

// ContextSize is the size of Context in memory.
const ContextSize = int(unsafe.Sizeof(Context{}))

// Busy states.
const (
	busyIdle uint32 = iota
	busyArmed
	busyPreparing
)

// NewContext allocates a zeroed Context using buffer 0.
func NewContext() *Context {
	return &Context{}
}

// ContextAt overlays a Context onto mem, typically a mapped device region.
func ContextAt(mem []byte) (*Context, error) {
	if len(mem) < ContextSize {
		return nil, fmt.Errorf("region too small for context: %d < %d", len(mem), ContextSize)
	}
	if uintptr(unsafe.Pointer(&mem[0]))%unsafe.Alignof(uint32(0)) != 0 {
		return nil, fmt.Errorf("region not aligned")
	}
	return (*Context)(unsafe.Pointer(&mem[0])), nil
}

// Reset zeros both buffers and all fields. Only valid while no loop
// is running against the context.
func (c *Context) Reset() {
	for i := range c.Buffers {
		c.Buffers[i] = [BufferSize]byte{}
	}
	atomic.StoreUint32(&c.Size, 0)
	atomic.StoreUint32(&c.MaxReceive, 0)
	atomic.StoreUint32(&c.Buffer, 0)
	atomic.StoreUint32(&c.Busy, busyIdle)
}

// Index returns the index of the producer buffer.
func (c *Context) Index() int {
	return int(atomic.LoadUint32(&c.Buffer) & 1)
}

// WriteBuffer returns the producer buffer.
// It must not be written while a transfer is in progress.
func (c *Context) WriteBuffer() []byte {
	return c.Buffers[c.Index()][:]
}

// ReadBuffer returns the consumer buffer, the one filled by the
// most recently completed transfer.
func (c *Context) ReadBuffer() []byte {
	return c.Buffers[c.Index()^1][:]
}

// Swap toggles the producer buffer and returns the new index.
// Only the loop owning the context calls it, once per completed transfer.
func (c *Context) Swap() int {
	idx := (atomic.LoadUint32(&c.Buffer) & 1) ^ 1
	atomic.StoreUint32(&c.Buffer, idx)
	return int(idx)
}

// Length returns the transfer length. It is stable only while no
// transfer is in progress.
func (c *Context) Length() uint32 {
	return atomic.LoadUint32(&c.Size)
}

// MaxLength returns the maximum accepted reception length.
func (c *Context) MaxLength() uint32 {
	return atomic.LoadUint32(&c.MaxReceive)
}

// InProgress reports whether a transfer is being prepared or in flight.
func (c *Context) InProgress() bool {
	return atomic.LoadUint32(&c.Busy) != busyIdle
}

// Armed reports whether a transfer has been fully published to the loop.
func (c *Context) Armed() bool {
	return atomic.LoadUint32(&c.Busy) == busyArmed
}

// TryBegin claims the context for a new transfer, records length and
// maxLength and publishes the transfer. It returns false without touching
// anything if a transfer is already in progress.
func (c *Context) TryBegin(length, maxLength uint32) bool {
	if !atomic.CompareAndSwapUint32(&c.Busy, busyIdle, busyPreparing) {
		return false
	}
	atomic.StoreUint32(&c.Size, length)
	atomic.StoreUint32(&c.MaxReceive, maxLength)
	atomic.StoreUint32(&c.Busy, busyArmed)
	return true
}

// Complete finishes the in-flight transfer with n bytes moved.
// The length and the new buffer index are stored before Busy is cleared,
// so anyone observing !InProgress() also observes both.
func (c *Context) Complete(n uint32) {
	atomic.StoreUint32(&c.Size, n)
	c.Swap()
	atomic.StoreUint32(&c.Busy, busyIdle)
}

// Abort ends the in-flight transfer without swapping buffers.
func (c *Context) Abort() {
	atomic.StoreUint32(&c.Busy, busyIdle)
}
