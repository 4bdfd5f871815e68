// Package metrics exposes send-path counters for a harness run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the harness
type Metrics struct {
	RecordsSent *prometheus.CounterVec
	SendErrors  *prometheus.CounterVec
	registry    *prometheus.Registry
}

// New creates and registers all metrics on a private registry, so parallel
// tests never collide on duplicate registration.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		RecordsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamtest_records_sent_total",
				Help: "Total number of test records sent",
			},
			[]string{"worker"},
		),
		SendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamtest_send_errors_total",
				Help: "Total number of failed datagram sends",
			},
			[]string{"worker"},
		),
		registry: registry,
	}

	registry.MustRegister(m.RecordsSent)
	registry.MustRegister(m.SendErrors)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
