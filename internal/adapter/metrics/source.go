package metrics

import "github.com/prometheus/client_golang/prometheus"

// SourceMetrics holds Prometheus metrics for device source links, labelled by slot.
type SourceMetrics struct {
	Connected         *prometheus.GaugeVec
	Exhausted         *prometheus.GaugeVec
	ReconnectAttempts *prometheus.CounterVec
	Messages          *prometheus.CounterVec
	ParseErrors       *prometheus.CounterVec
}

// NewSourceMetrics creates and registers source metrics on the given registry.
func NewSourceMetrics(reg prometheus.Registerer) *SourceMetrics {
	m := &SourceMetrics{
		Connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "connected",
			Help:      "1 while the source link is open, 0 otherwise.",
		}, []string{"slot"}),
		Exhausted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "exhausted",
			Help:      "1 once the source has used up its reconnect attempts.",
		}, []string{"slot"}),
		ReconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of scheduled reconnect attempts.",
		}, []string{"slot"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "messages_total",
			Help:      "Total number of readings accepted from the source.",
		}, []string{"slot"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "parse_errors_total",
			Help:      "Total number of source frames that failed to parse.",
		}, []string{"slot"}),
	}

	reg.MustRegister(m.Connected, m.Exhausted, m.ReconnectAttempts, m.Messages, m.ParseErrors)
	return m
}
