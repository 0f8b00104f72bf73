package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics holds Prometheus metrics for the subscriber fan-out.
type BroadcastMetrics struct {
	Subscribers   prometheus.Gauge
	Rejected      prometheus.Counter
	Ticks         prometheus.Counter
	DroppedFrames prometheus.Counter
	TickDuration  prometheus.Histogram
	PayloadBytes  prometheus.Gauge
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Number of connected snapshot subscribers.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "rejected_subscribers_total",
			Help:      "Total number of subscribers rejected by the subscriber limit.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "ticks_total",
			Help:      "Total number of broadcast ticks.",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_frames_total",
			Help:      "Total number of snapshot frames dropped because a subscriber buffer was full.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "tick_duration_seconds",
			Help:      "Time spent encoding and queueing one broadcast tick.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		PayloadBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "payload_bytes",
			Help:      "Size of the last encoded snapshot.",
		}),
	}

	reg.MustRegister(m.Subscribers, m.Rejected, m.Ticks, m.DroppedFrames, m.TickDuration, m.PayloadBytes)
	return m
}
