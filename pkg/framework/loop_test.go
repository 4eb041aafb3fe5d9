package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(l *Loop) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(context.Background()) }()
	return errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	case <-time.After(time.Second):
		t.Fatal("loop didn't stop")
	}
	return nil
}

func TestLoopStopSignals(t *testing.T) {
	var ticks int32
	internal, external := NewStopSignal(), NewStopSignal()
	l := NewLoop().StopOn(internal, external)
	l.Interval = time.Millisecond
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		if atomic.AddInt32(&ticks, 1) == 3 {
			external.Set()
		}
		return nil
	}))
	require.NoError(t, waitErr(t, runLoop(l)))
	require.EqualValues(t, 3, atomic.LoadInt32(&ticks))
	require.False(t, internal.IsSet())
}

func TestLoopStopsBeforeFirstTick(t *testing.T) {
	stop := NewStopSignal()
	stop.Set()
	l := NewLoop().StopOn(stop)
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		t.Error("controller must not run")
		return nil
	}))
	require.NoError(t, waitErr(t, runLoop(l)))
}

func TestLoopContextCanceled(t *testing.T) {
	l := NewLoop()
	l.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	cancel()
	require.Equal(t, context.Canceled, waitErr(t, errCh))
}

func TestLoopControllerError(t *testing.T) {
	failure := errors.New("failure")
	l := NewLoop()
	l.Interval = time.Millisecond
	l.AddController(PrLvTransfer, ControlFunc(func(cc ControlContext) error {
		return failure
	}))
	l.AddController(PrLvNotify, ControlFunc(func(cc ControlContext) error {
		t.Error("lower priority controller must not run after an error")
		return nil
	}))
	require.Equal(t, failure, waitErr(t, runLoop(l)))
}

func TestLoopPanic(t *testing.T) {
	l := NewLoop()
	l.Interval = time.Millisecond
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		panic("boom")
	}))
	err := waitErr(t, runLoop(l))
	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	require.Equal(t, "boom", panicErr.Value)
	require.NotEmpty(t, panicErr.Stack)
}

func TestLoopPostRunAndOrder(t *testing.T) {
	stop := NewStopSignal()
	var order []string
	l := NewLoop().StopOn(stop)
	l.Interval = time.Millisecond
	l.AddController(PrLvTransfer, ControlFunc(func(cc ControlContext) error {
		order = append(order, "transfer")
		assert.Equal(t, PrLvTransfer, cc.PriorityLevel())
		cc.PostRunAt(PrLvNotify, ControlFunc(func(cc ControlContext) error {
			order = append(order, "notify")
			stop.Set()
			return nil
		}))
		return nil
	}))
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		order = append(order, "normal")
		return nil
	}))
	require.NoError(t, waitErr(t, runLoop(l)))
	require.Equal(t, []string{"transfer", "normal", "notify"}, order)
}

func TestLoopTriggerNext(t *testing.T) {
	stop := NewStopSignal()
	l := NewLoop().StopOn(stop)
	l.Interval = time.Hour
	ran := make(chan uint64, 1)
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		ran <- cc.Iteration()
		return nil
	}))
	errCh := runLoop(l)
	l.TriggerNext()
	select {
	case n := <-ran:
		require.EqualValues(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("TriggerNext didn't wake up the loop")
	}
	stop.Set()
	l.TriggerNext()
	require.NoError(t, waitErr(t, errCh))
}
