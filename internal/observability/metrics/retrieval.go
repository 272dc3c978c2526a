package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RetrievalMetrics implements ports.RetrievalObserver on a Prometheus registry.
type RetrievalMetrics struct {
	service string

	requestsTotal   *prometheus.CounterVec
	noEvidenceTotal *prometheus.CounterVec
	results         *prometheus.HistogramVec
	duration        *prometheus.HistogramVec
	failedBranches  *prometheus.CounterVec
	branchTotal     *prometheus.CounterVec
	branchDuration  *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
}

func NewRetrievalMetrics(service string, registry prometheus.Registerer) *RetrievalMetrics {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Completed retrievals by strategy.",
		},
		[]string{"service", "strategy"},
	)
	noEvidenceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "no_evidence_total",
			Help:      "Retrievals that returned no results.",
		},
		[]string{"service", "strategy"},
	)
	results := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Distribution of results returned per retrieval.",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 50},
		},
		[]string{"service", "strategy"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	failedBranches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "failed_branches_total",
			Help:      "Search branches that failed, summed over retrievals.",
		},
		[]string{"service", "strategy"},
	)
	branchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "branches_total",
			Help:      "Search branches by kind and outcome.",
		},
		[]string{"service", "kind", "status"},
	)
	branchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "branch_duration_seconds",
			Help:      "Embed plus search duration per branch.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "kind"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per upstream operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "upstream"},
	)

	registry.MustRegister(
		requestsTotal,
		noEvidenceTotal,
		results,
		duration,
		failedBranches,
		branchTotal,
		branchDuration,
		stageDuration,
		breakerState,
	)

	return &RetrievalMetrics{
		service:         service,
		requestsTotal:   requestsTotal,
		noEvidenceTotal: noEvidenceTotal,
		results:         results,
		duration:        duration,
		failedBranches:  failedBranches,
		branchTotal:     branchTotal,
		branchDuration:  branchDuration,
		stageDuration:   stageDuration,
		breakerState:    breakerState,
	}
}

func (m *RetrievalMetrics) ObserveBranch(kind string, ok bool, duration time.Duration) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.branchTotal.WithLabelValues(m.service, kind, status).Inc()
	m.branchDuration.WithLabelValues(m.service, kind).Observe(duration.Seconds())
}

func (m *RetrievalMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
}

func (m *RetrievalMetrics) ObserveRetrieval(strategy string, results int, failedBranches int, duration time.Duration) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.requestsTotal.WithLabelValues(m.service, strategy).Inc()
	m.results.WithLabelValues(m.service, strategy).Observe(float64(results))
	m.duration.WithLabelValues(m.service, strategy).Observe(duration.Seconds())
	if failedBranches > 0 {
		m.failedBranches.WithLabelValues(m.service, strategy).Add(float64(failedBranches))
	}
	if results == 0 {
		m.noEvidenceTotal.WithLabelValues(m.service, strategy).Inc()
	}
}

// ObserveBreakerState has the shape of resilience.StateListener.
func (m *RetrievalMetrics) ObserveBreakerState(upstream, _ string, to string) {
	m.breakerState.WithLabelValues(m.service, upstream).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
