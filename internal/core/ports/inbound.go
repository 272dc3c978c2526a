package ports

import (
	"context"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

// EvidenceRetriever is the inbound contract for evidence search.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error)
}
