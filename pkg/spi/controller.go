package spi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/pruspi.go/pkg/framework"
	"github.com/robotalks/pruspi.go/pkg/pru"
)

// Role identifies the side of the bus a controller drives.
type Role int

// Roles.
const (
	RoleMaster Role = iota
	RoleSlave
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Callback is invoked on the loop goroutine after every buffer swap.
// The loop can't notice a stop request while a callback runs, so it
// should return quickly.
type Callback func()

// State is the lifecycle state of a controller.
type State int

// States.
const (
	StateNew State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateClosed
)

var stateNames = []string{"new", "initialized", "running", "stopped", "closed"}

// String implements fmt.Stringer.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status is a snapshot of a controller.
type Status struct {
	Role        Role
	State       State
	InProgress  bool
	BufferIndex int
	LastLength  uint32
	Transfers   uint64
	Err         error
}

// controller is the loop machinery shared by Master and Slave.
// The transport is owned by the loop goroutine once started; other
// goroutines only talk to the loop through the pru.Context.
type controller struct {
	role    Role
	config  Config
	metrics *roleMetrics

	lock      sync.Mutex
	transport pru.Transport
	loop      *framework.Loop
	startOnce bool

	ctx       atomic.Pointer[pru.Context]
	callback  atomic.Pointer[Callback]
	lastErr   atomic.Pointer[error]
	transfers atomic.Uint64
	started   atomic.Bool
	exited    atomic.Bool
	closed    atomic.Bool
	aborted   atomic.Bool
	stop      *framework.StopSignal
	done      chan struct{}
	err       error

	// checkCompletion validates a completed transfer of n bytes against
	// the maximum recorded in the context. Owned by the loop.
	checkCompletion func(n, maxLength uint32) error

	// loop goroutine only
	armed   bool
	armedAt time.Time
}

func (c *controller) setup(role Role, config Config) {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	c.role, c.config = role, config
	c.metrics = config.Metrics.forRole(role)
	c.stop = framework.NewStopSignal()
	c.done = make(chan struct{})
}

// Role returns the side of the bus driven by the controller.
func (c *controller) Role() Role {
	return c.role
}

// Init acquires the transport. It is a no-op once succeeded.
func (c *controller) Init() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed.Load() {
		return ErrStopped
	}
	if c.transport != nil {
		return nil
	}
	if c.config.Opener == nil {
		return &TransportError{Role: c.role, Err: pru.ErrUnavailable}
	}
	t, err := c.config.Opener()
	if err != nil {
		return &TransportError{Role: c.role, Err: err}
	}
	if t == nil || t.Context() == nil {
		return &TransportError{Role: c.role, Err: pru.ErrUnavailable}
	}
	c.transport = t
	c.ctx.Store(t.Context())
	glog.V(2).Infof("%s transport acquired", c.role)
	return nil
}

// Start stores the callback and spawns the loop. A controller starts
// at most once.
func (c *controller) Start(cb Callback) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed.Load() {
		return ErrStopped
	}
	if c.transport == nil {
		return ErrNotInitialized
	}
	if c.startOnce {
		return ErrAlreadyStarted
	}
	c.startOnce = true
	if cb != nil {
		c.callback.Store(&cb)
	}
	c.loop = framework.NewLoop().StopOn(c.stop, c.config.StopSignal)
	c.loop.Interval = c.config.Interval
	c.loop.AddController(framework.PrLvTransfer, c)
	c.started.Store(true)
	go c.run()
	glog.Infof("%s started, interval %v", c.role, c.config.Interval)
	return nil
}

func (c *controller) run() {
	defer close(c.done)
	err := c.loop.Run(context.Background())
	if err != nil {
		if _, ok := err.(*framework.PanicError); ok {
			c.metrics.failed(FailurePanic)
		}
		glog.Errorf("%s loop failed: %v", c.role, err)
	} else {
		glog.Infof("%s stopped", c.role)
	}
	c.err = err
	c.exited.Store(true)
}

// SetCallback replaces the completion callback; nil removes it.
func (c *controller) SetCallback(cb Callback) {
	if cb == nil {
		c.callback.Store(nil)
		return
	}
	c.callback.Store(&cb)
}

// Stop requests the loop to stop and removes the callback.
// It never blocks; use Wait to join the loop.
func (c *controller) Stop() {
	if c.stop.Set() {
		glog.V(2).Infof("%s stop requested", c.role)
	}
	c.callback.Store(nil)
	c.lock.Lock()
	loop := c.loop
	c.lock.Unlock()
	if loop != nil {
		loop.TriggerNext()
	}
}

// Wait blocks until the loop exits and returns its failure, if any.
func (c *controller) Wait() error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	<-c.done
	return c.err
}

// Close stops the loop, waits for it and releases the transport.
func (c *controller) Close() error {
	c.Stop()
	var errs framework.AggregatedError
	if c.started.Load() {
		<-c.done
		errs.Add(c.err)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	// accessors see a nil context once the transport may unmap it
	c.ctx.Store(nil)
	if !c.closed.Swap(true) && c.transport != nil {
		errs.Add(c.transport.Close())
		glog.V(2).Infof("%s transport released", c.role)
	}
	return errs.Aggregate()
}

// InProgress reports whether a transfer is pending or in flight.
func (c *controller) InProgress() bool {
	ctx := c.ctx.Load()
	return ctx != nil && ctx.InProgress()
}

// BufferIndex returns the index of the producer buffer.
func (c *controller) BufferIndex() int {
	if ctx := c.ctx.Load(); ctx != nil {
		return ctx.Index()
	}
	return 0
}

// LastTransmissionLength returns the number of bytes moved by the last
// completed transfer. It is only meaningful while no transfer is in
// progress.
func (c *controller) LastTransmissionLength() uint32 {
	if ctx := c.ctx.Load(); ctx != nil {
		return ctx.Length()
	}
	return 0
}

// Transfers returns the number of completed transfers.
func (c *controller) Transfers() uint64 {
	return c.transfers.Load()
}

// Data returns the producer buffer. It must not be written while a
// transfer is in progress, nor used after Close.
func (c *controller) Data() ([]byte, error) {
	ctx, err := c.context()
	if err != nil {
		return nil, err
	}
	return ctx.WriteBuffer(), nil
}

// Received returns the bytes delivered by the last completed transfer.
func (c *controller) Received() ([]byte, error) {
	ctx, err := c.context()
	if err != nil {
		return nil, err
	}
	n := ctx.Length()
	if n > pru.BufferSize {
		n = pru.BufferSize
	}
	return ctx.ReadBuffer()[:n], nil
}

// WaitForTransmissionToComplete polls at the loop cadence until no transfer
// is in progress. It returns false on timeout, after Close, or when the
// transfer was aborted by a transport failure.
func (c *controller) WaitForTransmissionToComplete(timeout time.Duration) bool {
	if !c.started.Load() {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()
	for {
		if done, ok := c.completed(); done {
			return ok
		}
		if c.exited.Load() {
			_, ok := c.completed()
			return ok
		}
		select {
		case <-ticker.C:
		case <-c.done:
		case <-timer.C:
			_, ok := c.completed()
			return ok
		}
	}
}

// completed reports whether no transfer is in progress and, if so,
// whether the last one completed rather than being aborted.
func (c *controller) completed() (done, ok bool) {
	ctx := c.ctx.Load()
	if ctx == nil {
		return true, false
	}
	if ctx.InProgress() {
		return false, false
	}
	return true, !c.aborted.Load()
}

// Healthy returns nil while the loop is running.
func (c *controller) Healthy() error {
	switch {
	case !c.started.Load():
		return ErrNotStarted
	case c.exited.Load():
		if c.err != nil {
			return c.err
		}
		return ErrStopped
	case c.stopRequested():
		return ErrStopped
	}
	return nil
}

// Status returns a snapshot of the controller.
func (c *controller) Status() Status {
	s := Status{
		Role:        c.role,
		InProgress:  c.InProgress(),
		BufferIndex: c.BufferIndex(),
		LastLength:  c.LastTransmissionLength(),
		Transfers:   c.Transfers(),
	}
	switch {
	case c.closed.Load():
		s.State = StateClosed
	case c.exited.Load():
		s.State = StateStopped
		s.Err = c.err
	case c.started.Load():
		s.State = StateRunning
	case c.ctx.Load() != nil:
		s.State = StateInitialized
	}
	return s
}

func (c *controller) stopRequested() bool {
	return framework.AnySet(c.stop, c.config.StopSignal)
}

func (c *controller) context() (*pru.Context, error) {
	if !c.started.Load() {
		return nil, ErrNotStarted
	}
	ctx := c.ctx.Load()
	if ctx == nil || c.closed.Load() {
		return nil, ErrStopped
	}
	return ctx, nil
}

// begin publishes a transfer request to the loop.
func (c *controller) begin(length, maxLength, capacity uint32) (err error) {
	defer func() {
		if err != nil {
			c.metrics.rejected(err)
		}
	}()
	ctx, err := c.context()
	if err != nil {
		return err
	}
	if c.exited.Load() || c.stopRequested() {
		return ErrStopped
	}
	if capacity > pru.BufferSize {
		return &LengthError{Length: capacity, Capacity: pru.BufferSize}
	}
	if !ctx.TryBegin(length, maxLength) {
		return ErrTransferInProgress
	}
	c.lock.Lock()
	loop := c.loop
	c.lock.Unlock()
	loop.TriggerNext()
	return nil
}

// Control implements framework.Controller. It runs on the loop goroutine.
func (c *controller) Control(cc framework.ControlContext) error {
	ctx := c.ctx.Load()
	if !c.armed {
		if !ctx.Armed() {
			return nil
		}
		if err := c.transport.Arm(ctx.Index(), ctx.Length(), ctx.MaxLength()); err != nil {
			c.aborted.Store(true)
			ctx.Abort()
			c.metrics.failed(FailureTransport)
			return fmt.Errorf("%s arm: %w", c.role, err)
		}
		c.armed, c.armedAt = true, cc.Time()
		glog.V(4).Infof("%s armed buffer %d, length %d", c.role, ctx.Index(), ctx.Length())
	}
	n, done, err := c.transport.Poll()
	if err != nil {
		c.armed = false
		c.aborted.Store(true)
		ctx.Abort()
		c.metrics.failed(FailureTransport)
		return fmt.Errorf("%s transfer: %w", c.role, err)
	}
	if !done {
		return nil
	}
	c.armed = false
	var lastErr error
	if c.checkCompletion != nil {
		lastErr = c.checkCompletion(n, ctx.MaxLength())
	}
	if lastErr != nil {
		c.metrics.failed(FailureOverflow)
		glog.Warningf("%s: %v", c.role, lastErr)
		c.lastErr.Store(&lastErr)
	} else {
		c.lastErr.Store(nil)
	}
	ctx.Complete(n)
	c.transfers.Add(1)
	c.metrics.completed(n, time.Since(c.armedAt))
	glog.V(4).Infof("%s completed %d bytes, buffer %d", c.role, n, ctx.Index())
	cc.PostRunAt(framework.PrLvNotify, framework.ControlFunc(c.notify))
	return nil
}

func (c *controller) notify(framework.ControlContext) error {
	if cb := c.callback.Load(); cb != nil {
		(*cb)()
	}
	return nil
}

func (c *controller) lastTransmissionErr() error {
	if err := c.lastErr.Load(); err != nil {
		return *err
	}
	return nil
}
