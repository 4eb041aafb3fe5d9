package framework

import (
	"context"
	"sync/atomic"
)

// StopSignal is a one-way stop request shared between a loop and
// whoever wants it to end. Once set it stays set.
type StopSignal struct {
	flag atomic.Bool
}

// NewStopSignal creates an unset StopSignal.
func NewStopSignal() *StopSignal {
	return &StopSignal{}
}

// Set raises the signal. It returns true only for the call that
// actually changed the state; repeated calls are no-ops.
func (s *StopSignal) Set() bool {
	return s.flag.CompareAndSwap(false, true)
}

// IsSet reports whether the signal is raised. A nil signal is never set.
func (s *StopSignal) IsSet() bool {
	return s != nil && s.flag.Load()
}

// Bind raises the signal when ctx is done.
func (s *StopSignal) Bind(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.Set()
	}()
}

// AnySet reports whether any of the signals is raised.
func AnySet(signals ...*StopSignal) bool {
	for _, s := range signals {
		if s.IsSet() {
			return true
		}
	}
	return false
}
