package httpadapter

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

const requestIDHeader = "X-Request-Id"

type (
	requestIDContextKey   struct{}
	searchStatsContextKey struct{}
)

// searchStats is filled by the search handler and read back by the access
// log, both on the request goroutine.
type searchStats struct {
	recorded       bool
	strategy       domain.Strategy
	branches       int
	failedBranches int
	results        int
	noEvidence     bool
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func recordSearchStats(ctx context.Context, result *domain.RetrievalResult) {
	stats, ok := ctx.Value(searchStatsContextKey{}).(*searchStats)
	if !ok || result == nil {
		return
	}
	*stats = searchStats{
		recorded:       true,
		strategy:       result.Strategy,
		branches:       result.Branches,
		failedBranches: result.FailedBranches,
		results:        len(result.Results),
		noEvidence:     result.NoEvidence,
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		r = r.WithContext(ctx)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r)
	})
}

// accessLog writes one http_request event per request. Search requests also
// carry the retrieval outcome so partial fan-out failures show up next to the
// status code.
func (rt *Router) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		stats := &searchStats{}
		r = r.WithContext(context.WithValue(r.Context(), searchStatsContextKey{}, stats))

		next.ServeHTTP(recorder, r)

		remoteAddr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remoteAddr = host
		}

		logAttrs := []any{
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", recorder.bytesWritten,
			"remote_addr", remoteAddr,
		}
		if stats.recorded {
			logAttrs = append(logAttrs,
				"strategy", stats.strategy,
				"branches", stats.branches,
				"failed_branches", stats.failedBranches,
				"results", stats.results,
				"no_evidence", stats.noEvidence,
			)
		}

		level := slog.LevelInfo
		switch {
		case recorder.statusCode >= 500:
			level = slog.LevelError
		case recorder.statusCode >= 400, stats.failedBranches > 0:
			level = slog.LevelWarn
		}
		rt.logger.Log(r.Context(), level, "http_request", logAttrs...)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}
