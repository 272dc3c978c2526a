package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/kirillkom/medical-evidence-rag/internal/config"
	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

type retrieverFake struct {
	mu     sync.Mutex
	result *domain.RetrievalResult
	err    error
	got    []domain.RetrievalRequest
}

func (f *retrieverFake) Retrieve(_ context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.RetrievalResult{
		Query:    req.Query,
		Strategy: domain.StrategyRewrite,
		Results:  []domain.EnrichedResult{},
		Branches: 1,
	}, nil
}

type readyFake struct {
	err error
}

func (f readyFake) Ready(context.Context) error { return f.err }

var errDown = errors.New("connection refused")

func newTestHandler(t *testing.T, cfg config.Config, retriever *retrieverFake, opts ...RouterOption) http.Handler {
	t.Helper()
	if retriever == nil {
		retriever = &retrieverFake{}
	}
	router, err := NewRouter(cfg, retriever, opts...)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}
