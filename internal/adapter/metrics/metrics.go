// Package metrics wires the Prometheus registry and the per-subsystem metric sets.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "middleman"

// Set bundles every metric group registered on one registry.
type Set struct {
	Registry  *prometheus.Registry
	Sources   *SourceMetrics
	Broadcast *BroadcastMetrics
	HTTP      *HTTPMetrics
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewSet creates a fresh registry with all metric groups registered on it.
func NewSet() *Set {
	reg := NewRegistry()
	return &Set{
		Registry:  reg,
		Sources:   NewSourceMetrics(reg),
		Broadcast: NewBroadcastMetrics(reg),
		HTTP:      NewHTTPMetrics(reg),
	}
}

// Handler serves the set's registry.
func (s *Set) Handler() http.Handler {
	return Handler(s.Registry)
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
