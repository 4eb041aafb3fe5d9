package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/golang/glog"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/pruspi.go/pkg/framework"
)

// NewHandler serves /metrics from gatherer and /live, /ready from the
// controllers. A controller is live until its loop fails and ready while
// its loop runs.
func NewHandler(gatherer prometheus.Gatherer, controllers ...Watched) http.Handler {
	health := healthcheck.NewHandler()
	for _, c := range controllers {
		c := c
		name := c.Role().String()
		health.AddLivenessCheck(name, func() error { return c.Status().Err })
		health.AddReadinessCheck(name, c.Healthy)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/live", health)
	mux.Handle("/ready", health)
	return mux
}

// Server runs an HTTP server until the context is done.
type Server struct {
	Addr    string
	Handler http.Handler

	listener net.Listener
}

// Listen binds the address so that Addr reports the actual port.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener, s.Addr = ln, ln.Addr().String()
	return nil
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	srv := &http.Server{Handler: s.Handler}
	glog.Infof("serving metrics and health checks on %s", s.Addr)
	err := framework.RunWithContextCloser(ctx, srv, func() error {
		return srv.Serve(s.listener)
	})
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
