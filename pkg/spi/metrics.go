package spi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects transfer statistics of controllers. A nil *Metrics
// records nothing.
type Metrics struct {
	Transfers *prometheus.CounterVec
	Bytes     *prometheus.CounterVec
	Failures  *prometheus.CounterVec
	Rejected  *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
}

// Failure kinds.
const (
	FailureTransport = "transport"
	FailureOverflow  = "overflow"
	FailurePanic     = "panic"
)

// NewMetrics creates unregistered metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spi",
			Name:      "transfers_total",
			Help:      "Completed transfers.",
		}, []string{"role"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spi",
			Name:      "bytes_total",
			Help:      "Bytes moved by completed transfers.",
		}, []string{"role"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spi",
			Name:      "failures_total",
			Help:      "Failed or overflowed transfers.",
		}, []string{"role", "kind"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spi",
			Name:      "rejected_requests_total",
			Help:      "Transfer requests rejected by the controller.",
		}, []string{"role", "reason"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "spi",
			Name:      "transfer_duration_seconds",
			Help:      "Time from arming a transfer to observing its completion.",
			Buckets:   prometheus.ExponentialBuckets(100e-6, 2, 12),
		}, []string{"role"}),
	}
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Transfers, m.Bytes, m.Failures, m.Rejected, m.Duration}
}

// MustRegister registers all collectors with r.
func (m *Metrics) MustRegister(r prometheus.Registerer) *Metrics {
	r.MustRegister(m.Collectors()...)
	return m
}

type roleMetrics struct {
	m    *Metrics
	role string

	transfers prometheus.Counter
	bytes     prometheus.Counter
	duration  prometheus.Observer
}

func (m *Metrics) forRole(role Role) *roleMetrics {
	if m == nil {
		return nil
	}
	r := role.String()
	return &roleMetrics{
		m:         m,
		role:      r,
		transfers: m.Transfers.WithLabelValues(r),
		bytes:     m.Bytes.WithLabelValues(r),
		duration:  m.Duration.WithLabelValues(r),
	}
}

func (r *roleMetrics) completed(n uint32, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.transfers.Inc()
	r.bytes.Add(float64(n))
	r.duration.Observe(elapsed.Seconds())
}

func (r *roleMetrics) failed(kind string) {
	if r != nil {
		r.m.Failures.WithLabelValues(r.role, kind).Inc()
	}
}

func (r *roleMetrics) rejected(err error) {
	if r != nil {
		r.m.Rejected.WithLabelValues(r.role, reason(err)).Inc()
	}
}

func reason(err error) string {
	switch err {
	case ErrTransferInProgress:
		return "in_progress"
	case ErrStopped:
		return "stopped"
	case ErrNotStarted:
		return "not_started"
	}
	if _, ok := err.(*LengthError); ok {
		return "length"
	}
	return "other"
}
