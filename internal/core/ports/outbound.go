package ports

import (
	"context"
	"time"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

// Embedder turns query text into a vector for the chunk index.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type IndexQuery struct {
	Vector []float32
	Text   string
	Limit  int
	Filter domain.SearchFilter
}

// ChunkIndex performs nearest-neighbour search over indexed chunks.
type ChunkIndex interface {
	Search(ctx context.Context, query IndexQuery) ([]domain.Candidate, error)
	FetchByID(ctx context.Context, chunkID string) (*domain.Chunk, error)
}

// DocumentMetadataSource resolves document-level metadata for a set of documents.
type DocumentMetadataSource interface {
	BatchFetchDocumentMetadata(ctx context.Context, documentIDs []string) (map[string]domain.DocumentMetadata, error)
}

// TextGenerator completes prompts for query reformulation and decomposition.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error)
}

// CrossEncoder scores (query, passage) pairs; one score per passage, same order.
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// RetrievalObserver receives pipeline timings and outcomes.
type RetrievalObserver interface {
	ObserveBranch(kind string, ok bool, duration time.Duration)
	ObserveStage(stage string, duration time.Duration)
	ObserveRetrieval(strategy string, results int, failedBranches int, duration time.Duration)
}
