package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/medical-evidence-rag/internal/config"
	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
	"github.com/kirillkom/medical-evidence-rag/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxRequestBytes = 64 << 10
	healthTimeout   = 2 * time.Second
)

// HealthChecker is a dependency probed by /healthz.
type HealthChecker interface {
	Ready(ctx context.Context) error
}

type Router struct {
	cfg       config.Config
	retriever ports.EvidenceRetriever
	checks    map[string]HealthChecker
	metrics   *metrics.HTTPServerMetrics
	validator *requestValidator
	logger    *slog.Logger
}

type RouterOption func(*Router)

func WithHealthCheck(name string, check HealthChecker) RouterOption {
	return func(rt *Router) {
		if check != nil {
			rt.checks[name] = check
		}
	}
}

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(cfg config.Config, retriever ports.EvidenceRetriever, opts ...RouterOption) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	rt := &Router{
		cfg:       cfg,
		retriever: retriever,
		checks:    make(map[string]HealthChecker),
		validator: validator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/openapi.yaml", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/evidence/search", rt.trafficControl(rt.validator.middleware(http.HandlerFunc(rt.searchEvidence))))

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(rt.accessLog(handler))
}

func (rt *Router) trafficControl(next http.Handler) http.Handler {
	onReject := func(reason string) {
		rt.metrics.RecordRejected(serviceName, reason)
	}
	handler := backpressureWithReject(next, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWaitTimeout, onReject)
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := rt.cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		handler = rateLimitMiddleware(handler, rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst), onReject)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(rt.checks))
	for name, check := range rt.checks {
		if err := check.Ready(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			rt.logger.Warn("health_check_failed", "dependency", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

type searchRequest struct {
	Query    string        `json:"query"`
	TopK     int           `json:"top_k"`
	Strategy string        `json:"strategy"`
	Filters  searchFilters `json:"filters"`
}

type searchFilters struct {
	Level           string `json:"level"`
	Section         string `json:"section"`
	StatisticalOnly bool   `json:"statistical_only"`
	Topic           string `json:"topic"`
	QualityGrade    string `json:"quality_grade"`
}

func (req searchRequest) toDomain() domain.RetrievalRequest {
	level, _ := domain.ParseChunkLevel(req.Filters.Level)
	return domain.RetrievalRequest{
		Query:    req.Query,
		TopK:     req.TopK,
		Strategy: domain.Strategy(strings.TrimSpace(req.Strategy)),
		Filters: domain.RetrievalFilters{
			Level:           level,
			Section:         strings.TrimSpace(req.Filters.Section),
			StatisticalOnly: req.Filters.StatisticalOnly,
			Topic:           strings.TrimSpace(req.Filters.Topic),
			QualityGrade:    strings.TrimSpace(req.Filters.QualityGrade),
		},
	}
}

func (rt *Router) searchEvidence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	ctx := r.Context()
	if rt.cfg.APIRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.APIRequestTimeout)
		defer cancel()
	}

	result, err := rt.retriever.Retrieve(ctx, req.toDomain())
	if err == nil {
		recordSearchStats(r.Context(), result)
		err = result.OutageError("search evidence")
	}
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status >= http.StatusInternalServerError {
			rt.logger.Error("search_evidence_failed", "request_id", requestIDFromContext(r.Context()), "status", status, "error", err)
		}
		writeJSON(w, status, map[string]string{"error": publicErrorMessage(status, err)})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
