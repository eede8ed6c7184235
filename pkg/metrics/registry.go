// Package metrics holds the Prometheus instruments of an alert stream.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Nack reasons.
const (
	NackDecode    = "decode"
	NackCallback  = "callback"
	NackRejected  = "rejected"
	NackSink      = "sink"
	NackAbandoned = "abandoned"
	NackStopping  = "stopping"
)

// Registry encapsulates all metrics without global state. A nil *Registry is
// valid and records nothing.
type Registry struct {
	registry *prometheus.Registry

	messagesTotal   *prometheus.CounterVec
	nackTotal       *prometheus.CounterVec
	recordsAccepted *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	sinkTotal       *prometheus.CounterVec
	sinkDuration    *prometheus.HistogramVec
	startTime       prometheus.Gauge
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertstream_messages_total",
				Help: "Messages settled by the streaming pull",
			},
			[]string{"subscription", "outcome"}, // outcome: ack, nack
		),

		nackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertstream_nack_total",
				Help: "Negative acknowledgments by reason",
			},
			[]string{"subscription", "reason"},
		),

		recordsAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertstream_records_accepted_total",
				Help: "Records counted towards a run's result limit",
			},
			[]string{"subscription"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertstream_runs_total",
				Help: "Completed streaming pull runs by termination reason",
			},
			[]string{"subscription", "reason"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alertstream_run_duration_seconds",
				Help:    "Wall time of streaming pull runs",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"subscription"},
		),

		sinkTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertstream_sink_save_total",
				Help: "Record saves by sink and status",
			},
			[]string{"sink", "status"}, // status: success, error
		),

		sinkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alertstream_sink_save_duration_seconds",
				Help:    "Time spent saving a record",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"sink"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alertstream_start_time_seconds",
				Help: "Unix timestamp when the process started",
			},
		),
	}

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(
		r.messagesTotal,
		r.nackTotal,
		r.recordsAccepted,
		r.runsTotal,
		r.runDuration,
		r.sinkTotal,
		r.sinkDuration,
		r.startTime,
	)
	r.startTime.SetToCurrentTime()

	return r
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordAck records one acknowledged message.
func (r *Registry) RecordAck(subscription string) {
	if r == nil {
		return
	}
	r.messagesTotal.WithLabelValues(subscription, "ack").Inc()
}

// RecordNack records one negatively acknowledged message.
func (r *Registry) RecordNack(subscription, reason string) {
	if r == nil {
		return
	}
	r.messagesTotal.WithLabelValues(subscription, "nack").Inc()
	r.nackTotal.WithLabelValues(subscription, reason).Inc()
}

// RecordAccepted adds n to the accepted records counter.
func (r *Registry) RecordAccepted(subscription string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.recordsAccepted.WithLabelValues(subscription).Add(float64(n))
}

// RecordRun records a finished run.
func (r *Registry) RecordRun(subscription, reason string, duration time.Duration) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(subscription, reason).Inc()
	r.runDuration.WithLabelValues(subscription).Observe(duration.Seconds())
}

// RecordSinkSave records a sink save operation.
func (r *Registry) RecordSinkSave(sink string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.sinkTotal.WithLabelValues(sink, status).Inc()
	r.sinkDuration.WithLabelValues(sink).Observe(duration.Seconds())
}
