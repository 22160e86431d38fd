// Package metrics holds the SDK's Prometheus instrumentation. Everything is
// nil-safe: a nil *Metrics turns every observation into a no-op so the SDK
// runs unchanged with metrics disabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	EventsCaptured  *prometheus.CounterVec
	EventsDelivered *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	SinkErrors      *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	FlushLatency    *prometheus.HistogramVec

	ResolutionErrors prometheus.Counter
	DeferredChecks   *prometheus.CounterVec
}

// New creates and registers all SDK metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsCaptured: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paylisher_events_captured_total",
				Help: "Total events captured, by sink",
			},
			[]string{"sink"},
		),
		EventsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paylisher_events_delivered_total",
				Help: "Total events delivered to the collector, by sink",
			},
			[]string{"sink"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paylisher_events_dropped_total",
				Help: "Total events dropped after exhausting delivery attempts",
			},
			[]string{"sink"},
		),
		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paylisher_sink_errors_total",
				Help: "Total errors writing to a sink",
			},
			[]string{"sink", "error_type"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paylisher_queue_depth",
				Help: "Current depth of the delivery queue",
			},
			[]string{"sink"},
		),
		FlushLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paylisher_flush_latency_seconds",
				Help:    "Latency of flushing a batch to the collector",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sink"},
		),
		ResolutionErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paylisher_campaign_resolution_errors_total",
				Help: "Total failed campaign resolutions",
			},
		),
		DeferredChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paylisher_deferred_checks_total",
				Help: "Deferred attribution checks by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.EventsCaptured,
		m.EventsDelivered,
		m.EventsDropped,
		m.SinkErrors,
		m.QueueDepth,
		m.FlushLatency,
		m.ResolutionErrors,
		m.DeferredChecks,
	)
	return m
}

func (m *Metrics) IncCaptured(sink string) {
	if m != nil {
		m.EventsCaptured.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) AddDelivered(sink string, n int) {
	if m != nil {
		m.EventsDelivered.WithLabelValues(sink).Add(float64(n))
	}
}

func (m *Metrics) AddDropped(sink string, n int) {
	if m != nil {
		m.EventsDropped.WithLabelValues(sink).Add(float64(n))
	}
}

func (m *Metrics) IncSinkError(sink, errorType string) {
	if m != nil {
		m.SinkErrors.WithLabelValues(sink, errorType).Inc()
	}
}

func (m *Metrics) SetQueueDepth(sink string, depth int) {
	if m != nil {
		m.QueueDepth.WithLabelValues(sink).Set(float64(depth))
	}
}

func (m *Metrics) ObserveFlush(sink string, d time.Duration) {
	if m != nil {
		m.FlushLatency.WithLabelValues(sink).Observe(d.Seconds())
	}
}

func (m *Metrics) IncResolutionError() {
	if m != nil {
		m.ResolutionErrors.Inc()
	}
}

func (m *Metrics) IncDeferredCheck(outcome string) {
	if m != nil {
		m.DeferredChecks.WithLabelValues(outcome).Inc()
	}
}
