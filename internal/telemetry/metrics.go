package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "couponrelay"

// Delivery triggers recorded on the deliveries counter.
const (
	TriggerSubmit  = "submit"
	TriggerConnect = "connect"
)

// Store labels recorded on the evictions counter.
const (
	StoreResults     = "results"
	StoreConnections = "connections"
)

// Metrics records relay activity as Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	submitted    *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	buffered     *prometheus.CounterVec
	registered   prometheus.Counter
	evictions    *prometheus.CounterVec
	pushFailures *prometheus.CounterVec
}

// NewMetrics creates a [Metrics] with its own registry. Go runtime and
// process collectors are registered alongside the relay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_submitted_total",
			Help:      "Coupon results accepted from the backend.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Results handed to the push transport.",
		}, []string{"kind", "trigger"}),
		buffered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_buffered_total",
			Help:      "Results stored because no client was connected yet.",
		}, []string{"kind"}),
		registered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_registered_total",
			Help:      "Client connection registrations.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Entries removed by the reaper.",
		}, []string{"store"}),
		pushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Pushes the transport reported as failed.",
		}, []string{"transport"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submitted,
		m.deliveries,
		m.buffered,
		m.registered,
		m.evictions,
		m.pushFailures,
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackStores exposes the current store sizes as gauges. Call it once.
func (m *Metrics) TrackStores(pendingResults, liveConnections func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_results",
			Help:      "Results currently buffered.",
		}, func() float64 { return float64(pendingResults()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Connection markers currently stored.",
		}, func() float64 { return float64(liveConnections()) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ResultSubmitted(kind string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivered(kind, trigger string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, trigger).Inc()
}

func (m *Metrics) Buffered(kind string) {
	if m == nil {
		return
	}
	m.buffered.WithLabelValues(kind).Inc()
}

func (m *Metrics) ConnectionRegistered() {
	if m == nil {
		return
	}
	m.registered.Inc()
}

// Evicted adds n to the evictions counter for the named store.
func (m *Metrics) Evicted(store string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(store).Add(float64(n))
}

func (m *Metrics) PushFailed(transport string) {
	if m == nil {
		return
	}
	m.pushFailures.WithLabelValues(transport).Inc()
}
