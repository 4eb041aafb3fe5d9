package pru

import (
	"sync"
	"time"
)

// IdleLine is the byte shifted in when nobody drives the data line.
const IdleLine byte = 0xff

// Sim is a simulated Transport backed by a heap allocated Context.
//
// A standalone Sim completes every armed transfer after Delay. A pair
// created by NewSimPair behaves like a master wired to a slave: the
// master completes after Delay and, if the slave is armed at that
// moment, both buffers exchange their first n bytes in place, where n is
// the master transfer length. The slave completes only when clocked by
// its master.
type Sim struct {
	Delay time.Duration

	ctx  *Context
	lock sync.Mutex

	armed    bool
	armedAt  time.Time
	index    int
	length   uint32
	received uint32
	clocked  bool

	hang      bool
	forceLen  bool
	forcedLen uint32
	failure   error
	peer      *Sim
	driven    bool
	closed    bool
	transfers int
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithDelay sets the time a transfer takes.
func WithDelay(d time.Duration) SimOption {
	return func(s *Sim) { s.Delay = d }
}

// WithHang makes armed transfers never complete.
func WithHang() SimOption {
	return func(s *Sim) { s.hang = true }
}

// WithReceivedLength reports n bytes moved for every transfer regardless
// of the armed length.
func WithReceivedLength(n uint32) SimOption {
	return func(s *Sim) { s.forceLen, s.forcedLen = true, n }
}

// WithFailure makes every transfer fail with err once its delay elapsed.
func WithFailure(err error) SimOption {
	return func(s *Sim) { s.failure = err }
}

// NewSim creates a standalone simulated transport.
func NewSim(opts ...SimOption) *Sim {
	s := &Sim{ctx: NewContext()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSimPair creates a master transport wired to a slave transport.
// Options apply to the master only.
func NewSimPair(opts ...SimOption) (master, slave *Sim) {
	master, slave = NewSim(opts...), NewSim()
	master.peer, slave.driven = slave, true
	return
}

// Context implements Transport.
func (s *Sim) Context() *Context {
	return s.ctx
}

// Transfers returns the number of completed transfers.
func (s *Sim) Transfers() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.transfers
}

// Arm implements Transport.
func (s *Sim) Arm(index int, length, maxLength uint32) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.armed, s.armedAt = true, time.Now()
	s.index, s.length = index&1, length
	s.clocked, s.received = false, 0
	return nil
}

// Poll implements Transport.
func (s *Sim) Poll() (uint32, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	if !s.armed || s.hang {
		return 0, false, nil
	}
	if s.driven {
		if !s.clocked {
			return 0, false, nil
		}
		return s.finish(s.received)
	}
	if time.Since(s.armedAt) < s.Delay {
		return 0, false, nil
	}
	if s.failure != nil {
		s.armed = false
		return 0, false, s.failure
	}
	n := s.length
	if n > BufferSize {
		n = BufferSize
	}
	if s.peer != nil {
		s.peer.clock(s.ctx.Buffers[s.index][:n])
	}
	if s.forceLen {
		return s.finish(s.forcedLen)
	}
	return s.finish(s.length)
}

// clock exchanges data in place with an armed slave. Without an armed
// slave the master shifts in an idle line.
func (s *Sim) clock(data []byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.armed || s.clocked || s.closed {
		for i := range data {
			data[i] = IdleLine
		}
		return
	}
	buf := s.ctx.Buffers[s.index][:len(data)]
	for i := range data {
		data[i], buf[i] = buf[i], data[i]
	}
	s.clocked, s.received = true, uint32(len(data))
	if s.forceLen {
		s.received = s.forcedLen
	}
}

func (s *Sim) finish(n uint32) (uint32, bool, error) {
	s.armed = false
	s.transfers++
	return n, true, nil
}

// Close implements Transport.
func (s *Sim) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed, s.armed = true, false
	return nil
}
