package framework

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the cadence of a Loop without an explicit Interval.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers at a fixed cadence until stopped.
//
// Stop signals are checked before and after every wait for the next
// tick, so a stop request is honored within one Interval as long as
// controllers don't block.
type Loop struct {
	Interval    time.Duration
	StopSignals []*StopSignal

	controllers [PriorityLevels]controllerList

	iteration uint64
	wakeUpCh  chan struct{}
}

type loopCtl struct {
	*Loop
}

type loopIteration struct {
	loopCtl
	ctx           context.Context
	time          time.Time
	priorityLevel int
	iteration     uint64
}

type controllerList struct {
	controllers []Controller
	postHooks   []Controller
	lock        sync.Mutex
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultInterval,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// AddController registers controllers to the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	lst := &l.controllers[priorityLevel]
	lst.controllers = append(lst.controllers, ctls...)
	return l
}

// StopOn adds stop signals checked on every iteration.
func (l *Loop) StopOn(signals ...*StopSignal) *Loop {
	l.StopSignals = append(l.StopSignals, signals...)
	return l
}

// Run implements Runnable.
// It returns nil when a stop signal is raised, ctx.Err() when ctx is done,
// and the first error returned by a controller otherwise. A panic in a
// controller is recovered and returned as *PanicError.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if AnySet(l.StopSignals...) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-l.wakeUpCh:
		}
		if AnySet(l.StopSignals...) {
			return nil
		}
		if err := l.runIteration(ctx); err != nil {
			glog.Errorf("loop stopped: %v", err)
			return err
		}
	}
}

// PostRunAt implements LoopControl.
func (l *Loop) PostRunAt(priorityLevel int, hooks ...Controller) {
	lst := &l.controllers[priorityLevel]
	lst.lock.Lock()
	lst.postHooks = append(lst.postHooks, hooks...)
	lst.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

func (l *Loop) runIteration(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	iter := &loopIteration{
		loopCtl:   loopCtl{l},
		ctx:       ctx,
		time:      time.Now(),
		iteration: l.iteration,
	}
	l.iteration++
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		if err = l.controllers[i].run(iter); err != nil {
			return
		}
	}
	return
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) PriorityLevel() int {
	return t.priorityLevel
}

func (t *loopIteration) Iteration() uint64 {
	return t.iteration
}

func (t *loopIteration) PostRun(hooks ...Controller) {
	t.PostRunAt(t.priorityLevel, hooks...)
}

func (c *controllerList) run(iter *loopIteration) error {
	if err := runControllers(iter, c.controllers); err != nil {
		return err
	}
	c.lock.Lock()
	ctls := c.postHooks
	c.postHooks = nil
	c.lock.Unlock()
	return runControllers(iter, ctls)
}

func runControllers(iter *loopIteration, ctls []Controller) error {
	for _, ctl := range ctls {
		if err := ctl.Control(iter); err != nil {
			return err
		}
	}
	return nil
}
