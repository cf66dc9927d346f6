// Package prometheus is the concrete metrics.Set backed by
// github.com/prometheus/client_golang, grounded on the teacher's
// per-subsystem metrics files (internal/adapter/nlm/metrics.go,
// internal/protocol/nfs/v4/state/session_metrics.go): a pesitd_ prefixed
// set of counters/gauges/histograms, registered once at construction and
// nil-safe on every recording method.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hors-sit/pesitd/internal/metrics"
)

const namespace = "pesitd"

// Set is the Prometheus-backed metrics.Set. Construct with New and pass
// to internal/observer/promsink.
type Set struct {
	transfer *transferMetrics
	session  *sessionMetrics
}

// New creates and registers every pesitd_ metric with reg. Panics if
// registration fails for a reason other than double-registration
// (expected only during initialization).
func New(reg prometheus.Registerer) *Set {
	return &Set{
		transfer: newTransferMetrics(reg),
		session:  newSessionMetrics(reg),
	}
}

func (s *Set) Transfer() metrics.Transfer { return s.transfer }
func (s *Set) Session() metrics.Session   { return s.session }

// transferMetrics implements metrics.Transfer.
type transferMetrics struct {
	bytesTotal       *prometheus.CounterVec
	completedTotal   *prometheus.CounterVec
	completeDuration *prometheus.HistogramVec
	failedTotal      *prometheus.CounterVec
	syncPointsTotal  *prometheus.CounterVec
	activeGauge      prometheus.Gauge
}

func newTransferMetrics(reg prometheus.Registerer) *transferMetrics {
	m := &transferMetrics{
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Total bytes transferred, by direction (send/receive)",
		}, []string{"direction"}),
		completedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "completed_total",
			Help:      "Total transfers reaching TRANS_END successfully, by direction",
		}, []string{"direction"}),
		completeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "Transfer duration in seconds, by direction",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16), // 100ms to ~55min
		}, []string{"direction"}),
		failedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "failed_total",
			Help:      "Total transfers ending in failure, by direction and diagnostic code",
		}, []string{"direction", "diag_code"}),
		syncPointsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "sync_points_total",
			Help:      "Total SYN/ACK_SYN round trips completed, by direction",
		}, []string{"direction"}),
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "active",
			Help:      "Current number of in-flight transfers",
		}),
	}
	mustRegister(reg,
		m.bytesTotal, m.completedTotal, m.completeDuration,
		m.failedTotal, m.syncPointsTotal, m.activeGauge,
	)
	return m
}

func (m *transferMetrics) RecordBytes(direction string, n uint64) {
	if m == nil {
		return
	}
	m.bytesTotal.WithLabelValues(direction).Add(float64(n))
}

func (m *transferMetrics) RecordComplete(direction string, bytes uint64, duration time.Duration) {
	if m == nil {
		return
	}
	m.completedTotal.WithLabelValues(direction).Inc()
	m.completeDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

func (m *transferMetrics) RecordFailed(direction string, diagCode string) {
	if m == nil {
		return
	}
	m.failedTotal.WithLabelValues(direction, diagCode).Inc()
}

func (m *transferMetrics) RecordSyncPoint(direction string) {
	if m == nil {
		return
	}
	m.syncPointsTotal.WithLabelValues(direction).Inc()
}

func (m *transferMetrics) SetActiveTransfers(n int) {
	if m == nil {
		return
	}
	m.activeGauge.Set(float64(n))
}

// sessionMetrics implements metrics.Session.
type sessionMetrics struct {
	createdTotal   prometheus.Counter
	destroyedTotal *prometheus.CounterVec
	activeGauge    prometheus.Gauge
	duration       prometheus.Histogram
}

func newSessionMetrics(reg prometheus.Registerer) *sessionMetrics {
	m := &sessionMetrics{
		createdTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total sessions created",
		}),
		destroyedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "destroyed_total",
			Help:      "Total sessions destroyed, by reason",
		}, []string{"reason"}),
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of active sessions",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Lifetime of a session in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),
	}
	mustRegister(reg, m.createdTotal, m.destroyedTotal, m.activeGauge, m.duration)
	return m
}

func (m *sessionMetrics) RecordCreated() {
	if m == nil {
		return
	}
	m.createdTotal.Inc()
	m.activeGauge.Inc()
}

func (m *sessionMetrics) RecordDestroyed(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.destroyedTotal.WithLabelValues(reason).Inc()
	m.activeGauge.Dec()
	m.duration.Observe(duration.Seconds())
}

func (m *sessionMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeGauge.Set(float64(n))
}

// mustRegister registers every collector, tolerating double-registration
// (a restarted daemon reusing the default registerer) but panicking on
// any other registration error.
func mustRegister(reg prometheus.Registerer, collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, already := err.(prometheus.AlreadyRegisteredError); !already {
				panic(err)
			}
		}
	}
}
