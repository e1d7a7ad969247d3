// Package prometheus holds the module's Prometheus registry: RPC-facing
// counters, histograms, and gauges recording call/notify volume, call
// latency, in-flight request pressure, and dispatcher error rates. It is
// purely observational — per spec.md's Non-goals, nothing here gates or
// throttles a call; a handler never observes a metric.
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry.
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer.
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "relay"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds every Prometheus collector the RPC runtime records
// against. All fields are safe for concurrent use; nothing here takes an
// application-level lock.
type Metrics struct {
	// RPCCallsTotal counts completed Proxy.Call outcomes by method and
	// status ("ok" or "error").
	RPCCallsTotal *prometheus.CounterVec

	// RPCCallDuration observes the wall-clock time from BeginCall to
	// the matching response being resolved, by method.
	RPCCallDuration *prometheus.HistogramVec

	// RPCInflightRequests is the current size of a Proxy's in-flight
	// request map, summed across every Proxy sharing this registry.
	RPCInflightRequests prometheus.Gauge

	// RPCNotifyTotal counts one-way notifies sent, by method.
	RPCNotifyTotal *prometheus.CounterVec

	// DispatchErrorsTotal counts dispatcher.Call failures (unknown
	// method or handler-raised error), by method.
	DispatchErrorsTotal *prometheus.CounterVec

	// ConnectionsTotal counts every connection a Factory has ever
	// built, client or server side.
	ConnectionsTotal prometheus.Counter

	// ConnectionsActive is the current count of open connections
	// (built minus lost).
	ConnectionsActive prometheus.Gauge

	// Custom metrics registry, kept from the teacher's ad hoc
	// metric-on-demand pattern for anything a caller wants to record
	// that isn't one of the named RPC collectors above.
	CustomCounters   map[string]*prometheus.CounterVec
	CustomGauges     map[string]*prometheus.GaugeVec
	CustomHistograms map[string]*prometheus.HistogramVec
	customMu         sync.RWMutex
}

// GetMetrics returns the process-wide Metrics instance, building it
// against DefaultRegisterer on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics builds a fresh Metrics collection registered against
// registerer (DefaultRegisterer if nil). Tests and multi-instance
// processes that want isolated registries should call this directly
// rather than GetMetrics.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	return &Metrics{
		RPCCallsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_rpc_calls_total",
				Help: "Total number of RPC calls completed, by method and status.",
			},
			[]string{"method", "status"},
		),
		RPCCallDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_rpc_call_duration_seconds",
				Help:    "RPC call round-trip latency in seconds, by method.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RPCInflightRequests: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_rpc_inflight_requests",
				Help: "Current number of outstanding (unresolved) RPC calls.",
			},
		),
		RPCNotifyTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_rpc_notify_total",
				Help: "Total number of one-way notifies sent, by method.",
			},
			[]string{"method"},
		),
		DispatchErrorsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_dispatch_errors_total",
				Help: "Total number of dispatcher.Call failures, by method.",
			},
			[]string{"method"},
		),
		ConnectionsTotal: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "relay_connections_total",
				Help: "Total number of connections a Factory has ever built.",
			},
		),
		ConnectionsActive: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_connections_active",
				Help: "Current number of open connections.",
			},
		),

		CustomCounters:   make(map[string]*prometheus.CounterVec),
		CustomGauges:     make(map[string]*prometheus.GaugeVec),
		CustomHistograms: make(map[string]*prometheus.HistogramVec),
	}
}

// RecordCall records one completed RPC call: its method, whether it
// succeeded, and how long it took from BeginCall to resolution.
func (m *Metrics) RecordCall(method string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RPCCallsTotal.WithLabelValues(method, status).Inc()
	m.RPCCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordNotify records one outbound notify.
func (m *Metrics) RecordNotify(method string) {
	m.RPCNotifyTotal.WithLabelValues(method).Inc()
}

// RecordDispatchError records one dispatcher.Call failure.
func (m *Metrics) RecordDispatchError(method string) {
	m.DispatchErrorsTotal.WithLabelValues(method).Inc()
}

// RecordConnectionOpened records a Factory.Build.
func (m *Metrics) RecordConnectionOpened() {
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// RecordConnectionClosed records a protocol transitioning to closed.
func (m *Metrics) RecordConnectionClosed() {
	m.ConnectionsActive.Dec()
}

// Counter returns a custom counter metric, creating it on first use.
func (m *Metrics) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	m.customMu.RLock()
	if counter, exists := m.CustomCounters[name]; exists {
		m.customMu.RUnlock()
		return counter
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if counter, exists := m.CustomCounters[name]; exists {
		return counter
	}

	counter := promauto.With(DefaultRegisterer).NewCounterVec(
		prometheus.CounterOpts{Name: name, Help: help},
		labels,
	)
	m.CustomCounters[name] = counter
	return counter
}

// Gauge returns a custom gauge metric, creating it on first use.
func (m *Metrics) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	m.customMu.RLock()
	if gauge, exists := m.CustomGauges[name]; exists {
		m.customMu.RUnlock()
		return gauge
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if gauge, exists := m.CustomGauges[name]; exists {
		return gauge
	}

	gauge := promauto.With(DefaultRegisterer).NewGaugeVec(
		prometheus.GaugeOpts{Name: name, Help: help},
		labels,
	)
	m.CustomGauges[name] = gauge
	return gauge
}

// Histogram returns a custom histogram metric, creating it on first use.
func (m *Metrics) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	m.customMu.RLock()
	if histogram, exists := m.CustomHistograms[name]; exists {
		m.customMu.RUnlock()
		return histogram
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if histogram, exists := m.CustomHistograms[name]; exists {
		return histogram
	}

	opts := prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}
	if buckets == nil {
		opts.Buckets = prometheus.DefBuckets
	}
	histogram := promauto.With(DefaultRegisterer).NewHistogramVec(opts, labels)
	m.CustomHistograms[name] = histogram
	return histogram
}

// Counter returns a custom counter metric from the process-wide Metrics.
func Counter(name, help string, labels ...string) *prometheus.CounterVec {
	return GetMetrics().Counter(name, help, labels...)
}

// Gauge returns a custom gauge metric from the process-wide Metrics.
func Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return GetMetrics().Gauge(name, help, labels...)
}

// Histogram returns a custom histogram metric from the process-wide Metrics.
func Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return GetMetrics().Histogram(name, help, buckets, labels...)
}
