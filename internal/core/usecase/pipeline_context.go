package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
)

// PipelineContext carries the long-lived clients every pipeline stage needs.
// Only Embedder and Index are mandatory.
type PipelineContext struct {
	Embedder     ports.Embedder
	Index        ports.ChunkIndex
	Metadata     ports.DocumentMetadataSource
	Generator    ports.TextGenerator
	CrossEncoder ports.CrossEncoder
	Observer     ports.RetrievalObserver
	Logger       *slog.Logger
}

func (pc PipelineContext) Validate() error {
	if pc.Embedder == nil {
		return domain.WrapError(domain.ErrConfiguration, "pipeline context", fmt.Errorf("embedder is required"))
	}
	if pc.Index == nil {
		return domain.WrapError(domain.ErrConfiguration, "pipeline context", fmt.Errorf("chunk index is required"))
	}
	return nil
}

func (pc PipelineContext) logger() *slog.Logger {
	if pc.Logger != nil {
		return pc.Logger
	}
	return slog.Default()
}

func (pc PipelineContext) observer() ports.RetrievalObserver {
	if pc.Observer != nil {
		return pc.Observer
	}
	return noopObserver{}
}

type noopObserver struct{}

func (noopObserver) ObserveBranch(string, bool, time.Duration) {}

func (noopObserver) ObserveStage(string, time.Duration) {}

func (noopObserver) ObserveRetrieval(string, int, int, time.Duration) {}
