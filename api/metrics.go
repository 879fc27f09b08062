package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus instrumentation exposed on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	publishTotal  *prometheus.CounterVec
	requestsTotal *prometheus.CounterVec
}

// NewMetrics returns a Metrics with its own registry, including the
// standard Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mqttdash",
			Name:      "publish_requests_total",
			Help:      "Publish requests handled by the REST API, by outcome.",
		}, []string{"outcome"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mqttdash",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route group.",
		}, []string{"group"}),
	}

	reg.MustRegister(m.publishTotal, m.requestsTotal)

	return m
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Sessions exposes the connected WebSocket session count.
func (m *Metrics) Sessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "mqttdash",
		Name:      "websocket_sessions",
		Help:      "Connected WebSocket sessions.",
	}, func() float64 { return float64(count()) }))
}

// BrokerConnected exposes the broker connection state.
func (m *Metrics) BrokerConnected(connected func() bool) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "mqttdash",
		Name:      "broker_connected",
		Help:      "Whether the MQTT broker connection is up.",
	}, func() float64 {
		if connected() {
			return 1
		}

		return 0
	}))
}

// TrackedTopics exposes the active tracked topic count.
func (m *Metrics) TrackedTopics(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "mqttdash",
		Name:      "tracked_topics",
		Help:      "Topics currently tracked from broker traffic.",
	}, func() float64 { return float64(count()) }))
}

// PublishResult records the outcome of a publish request.
func (m *Metrics) PublishResult(outcome string) {
	m.publishTotal.WithLabelValues(outcome).Inc()
}

// Request records a served request in a route group.
func (m *Metrics) Request(group string) {
	m.requestsTotal.WithLabelValues(group).Inc()
}
