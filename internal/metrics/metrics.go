// Package metrics exposes prometheus collectors for the broadcast hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagepick"

// Drop reasons.
const (
	ReasonMalformed    = "malformed"
	ReasonSlowConsumer = "slow_consumer"
	ReasonClosed       = "closed"
)

// Hub holds the hub's collectors. A nil *Hub is valid and records nothing.
type Hub struct {
	connections prometheus.Gauge
	relayed     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// NewHub creates the hub collectors and registers them with reg.
func NewHub(reg prometheus.Registerer) *Hub {
	m := &Hub{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Number of open viewer connections.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "frames_relayed_total",
			Help:      "Frames fanned out to other viewers, by relayed type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "frames_dropped_total",
			Help:      "Frames that were not delivered, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.connections, m.relayed, m.dropped)
	return m
}

// Connected records a new connection.
func (m *Hub) Connected() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// Disconnected records a closed connection.
func (m *Hub) Disconnected() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// Relayed records one frame delivered to one recipient.
func (m *Hub) Relayed(msgType string) {
	if m == nil {
		return
	}
	m.relayed.WithLabelValues(msgType).Inc()
}

// Dropped records one undelivered frame.
func (m *Hub) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// NewRegistry returns a private registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
