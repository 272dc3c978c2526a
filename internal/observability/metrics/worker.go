package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	handledTotal    *prometheus.CounterVec
	handledDuration *prometheus.HistogramVec
	handledInFlight prometheus.Gauge

	retrieval *RetrievalMetrics
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	handledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_handled_total",
			Help:      "Total retrieval requests handled from the bus by status.",
		},
		[]string{"service", "status"},
	)
	handledDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Bus retrieval request handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	handledInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_in_flight",
			Help:      "Number of in-flight bus retrieval requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(handledTotal, handledDuration, handledInFlight)

	return &WorkerMetrics{
		registry:        registry,
		handledTotal:    handledTotal,
		handledDuration: handledDuration,
		handledInFlight: handledInFlight,
		retrieval:       NewRetrievalMetrics(service, registry),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Retrieval() *RetrievalMetrics {
	return m.retrieval
}

func (m *WorkerMetrics) StartRequest() {
	m.handledInFlight.Inc()
}

func (m *WorkerMetrics) FinishRequest(service string, duration time.Duration, err error) {
	m.handledInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.handledTotal.WithLabelValues(service, status).Inc()
	m.handledDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
