package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/medical-evidence-rag/internal/config"
	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/observability/metrics"
)

func postSearch(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/evidence/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestSearchEvidencePassesRequestToRetriever(t *testing.T) {
	fake := &retrieverFake{}
	handler := newTestHandler(t, config.Config{}, fake)

	res := postSearch(t, handler, `{"query":"statins for stroke","top_k":5,"strategy":"decompose","filters":{"level":"PARAGRAPH","statistical_only":true,"topic":"Stroke"}}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(fake.got) != 1 {
		t.Fatalf("expected one retrieval, got %d", len(fake.got))
	}
	got := fake.got[0]
	if got.Query != "statins for stroke" || got.TopK != 5 || got.Strategy != domain.StrategyDecompose {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Filters.Level != domain.LevelParagraph || !got.Filters.StatisticalOnly || got.Filters.Topic != "Stroke" {
		t.Fatalf("unexpected filters: %+v", got.Filters)
	}

	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["query"] != "statins for stroke" {
		t.Fatalf("unexpected response body: %v", body)
	}
	if _, ok := body["results"].([]any); !ok {
		t.Fatalf("expected results array, got %v", body["results"])
	}
}

func TestSearchEvidenceRejectsContractViolations(t *testing.T) {
	cases := map[string]string{
		"missing query":   `{"top_k":5}`,
		"empty query":     `{"query":""}`,
		"top_k too large": `{"query":"q","top_k":500}`,
		"unknown field":   `{"query":"q","limit":5}`,
		"bad strategy":    `{"query":"q","strategy":"hybrid"}`,
		"bad level":       `{"query":"q","filters":{"level":"CHAPTER"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fake := &retrieverFake{}
			res := postSearch(t, newTestHandler(t, config.Config{}, fake), body)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
			if len(fake.got) != 0 {
				t.Fatalf("retriever must not be called for invalid requests")
			}
		})
	}
}

func TestSearchEvidenceRejectsWhitespaceQuery(t *testing.T) {
	res := postSearch(t, newTestHandler(t, config.Config{}, nil), `{"query":"   "}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSearchEvidenceMapsErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid", err: domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("unknown strategy")), status: http.StatusBadRequest},
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "embed", errors.New("503")), status: http.StatusServiceUnavailable},
		{name: "configuration", err: domain.WrapError(domain.ErrConfiguration, "retrieve", errors.New("no index")), status: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := postSearch(t, newTestHandler(t, config.Config{}, &retrieverFake{err: tc.err}), `{"query":"q"}`)
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
		})
	}
}

func TestSearchEvidenceTotalOutageReturns503(t *testing.T) {
	fake := &retrieverFake{result: &domain.RetrievalResult{
		Query:          "q",
		Results:        []domain.EnrichedResult{},
		Branches:       3,
		FailedBranches: 3,
		NoEvidence:     true,
	}}
	res := postSearch(t, newTestHandler(t, config.Config{}, fake), `{"query":"q"}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestSearchEvidenceNoEvidenceIsNotAnError(t *testing.T) {
	fake := &retrieverFake{result: &domain.RetrievalResult{
		Query:          "q",
		Results:        []domain.EnrichedResult{},
		Branches:       3,
		FailedBranches: 1,
		NoEvidence:     true,
	}}
	res := postSearch(t, newTestHandler(t, config.Config{}, fake), `{"query":"q"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"no_evidence":true`) {
		t.Fatalf("expected no_evidence flag in body: %s", res.Body.String())
	}
}

func TestSearchEvidenceMethodNotAllowed(t *testing.T) {
	res := httptest.NewRecorder()
	newTestHandler(t, config.Config{}, nil).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/evidence/search", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestHealthzReportsDependencies(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, nil,
		WithHealthCheck("qdrant", readyFake{}),
		WithHealthCheck("postgres", readyFake{err: errDown}),
	)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if body.Status != "degraded" || body.Checks["qdrant"] != "ok" || body.Checks["postgres"] == "ok" {
		t.Fatalf("unexpected healthz body: %+v", body)
	}
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestMetricsEndpointAndOpenAPIDocument(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, nil, WithMetrics(metrics.NewHTTPServerMetrics("api")))

	_ = postSearch(t, handler, `{"query":"q"}`)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(res.Body)
	if !bytes.Contains(body, []byte("evidence_http_requests_total")) {
		t.Fatalf("expected http metrics in /metrics output")
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "/v1/evidence/search") {
		t.Fatalf("expected openapi document, got %d", res.Code)
	}
}

func TestAccessLogCarriesRetrievalOutcome(t *testing.T) {
	var logs bytes.Buffer
	fake := &retrieverFake{result: &domain.RetrievalResult{
		Query:          "statins",
		Strategy:       domain.StrategyDecompose,
		Results:        []domain.EnrichedResult{{}},
		Branches:       3,
		FailedBranches: 1,
	}}
	handler := newTestHandler(t, config.Config{}, fake, WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))

	req := httptest.NewRequest(http.MethodPost, "/v1/evidence/search", strings.NewReader(`{"query":"statins"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var candidate map[string]any
		if err := json.Unmarshal(line, &candidate); err == nil && candidate["msg"] == "http_request" {
			entry = candidate
		}
	}
	if entry == nil {
		t.Fatalf("expected http_request log entry, got %s", logs.String())
	}
	if entry["request_id"] != "req-42" || entry["strategy"] != "decompose" {
		t.Fatalf("unexpected access log entry: %v", entry)
	}
	if entry["branches"] != float64(3) || entry["failed_branches"] != float64(1) || entry["results"] != float64(1) {
		t.Fatalf("expected retrieval counts in access log, got %v", entry)
	}
	if entry["level"] != "WARN" {
		t.Fatalf("expected partial failure logged as WARN, got %v", entry["level"])
	}
}

func TestAccessLogOmitsRetrievalFieldsForHealthz(t *testing.T) {
	var logs bytes.Buffer
	handler := newTestHandler(t, config.Config{}, nil, WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !strings.Contains(logs.String(), `"msg":"http_request"`) {
		t.Fatalf("expected http_request log entry, got %s", logs.String())
	}
	if strings.Contains(logs.String(), "failed_branches") {
		t.Fatalf("healthz should not carry retrieval fields: %s", logs.String())
	}
}
