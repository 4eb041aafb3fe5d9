package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Runner.Wait after a second interrupt.
var ErrForcedExit = errors.New("forced exit")

type named struct {
	Runnable
	name string
}

func (r *named) Name() string {
	return r.name
}

// NamedRun attaches a name to a Runnable for logging.
func NamedRun(name string, runnable Runnable) Runnable {
	return &named{Runnable: runnable, name: name}
}

// Runner spawns Runnables in the background and joins them.
type Runner struct {
	// Context is canceled on the first interrupt once signals are handled.
	Context context.Context

	count  int
	errCh  chan error
	forced chan struct{}
}

// NewRunner creates a Runner on a background context.
func NewRunner() *Runner {
	return &Runner{
		Context: context.Background(),
		errCh:   make(chan error, 1),
		forced:  make(chan struct{}),
	}
}

// HandleSignalsWith cancels Context and raises stop (when not nil) on the
// first SIGINT or SIGTERM. A second one makes Wait return ErrForcedExit.
func (r *Runner) HandleSignalsWith(stop *StopSignal) *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	r.Context = ctx
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("interrupted, stopping")
		if stop != nil {
			stop.Set()
		}
		cancel()
		<-sigCh
		glog.Error("interrupted again, exiting")
		close(r.forced)
	}()
	return r
}

// GoWith runs each Runnable on its own goroutine with ctx.
func (r *Runner) GoWith(ctx context.Context, runnables ...Runnable) *Runner {
	for _, runnable := range runnables {
		name := strconv.Itoa(r.count)
		if n, ok := runnable.(Named); ok {
			name = n.Name()
		}
		r.count++
		go func(runnable Runnable, name string) {
			glog.V(4).Infof("%s running", name)
			err := runnable.Run(ctx)
			glog.V(4).Infof("%s exited: %v", name, err)
			r.errCh <- err
		}(runnable, name)
	}
	return r
}

// Wait joins all spawned Runnables. Cancellation is not reported as a
// failure.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for ; r.count > 0; r.count-- {
		select {
		case <-r.forced:
			return ErrForcedExit
		case err := <-r.errCh:
			if !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCloser runs fn, which knows nothing about ctx, and closes
// closer exactly once: on cancellation to unblock fn, or after fn returns.
// It returns context.Canceled if ctx ends first.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case err := <-errCh:
		closer.Close()
		return err
	case <-ctx.Done():
		closer.Close()
		<-errCh
		return context.Canceled
	}
}
