package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
)

var errFake = errors.New("fake failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEmbedder struct {
	failFor map[string]bool
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.failFor[text] {
		return nil, errFake
	}
	return []float32{float32(len(text)), 1}, nil
}

// fakeIndex returns canned candidates keyed by query text.
type fakeIndex struct {
	mu       sync.Mutex
	byText   map[string][]domain.Candidate
	fallback []domain.Candidate
	failFor  map[string]bool
	blockFor map[string]bool
	chunks   map[string]*domain.Chunk
	queries  []ports.IndexQuery
	fetched  []string
}

func (f *fakeIndex) Search(ctx context.Context, q ports.IndexQuery) ([]domain.Candidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.blockFor[q.Text] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.failFor[q.Text] {
		return nil, errFake
	}
	src, ok := f.byText[q.Text]
	if !ok {
		src = f.fallback
	}
	out := make([]domain.Candidate, len(src))
	copy(out, src)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeIndex) FetchByID(ctx context.Context, id string) (*domain.Chunk, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunk, ok := f.chunks[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrChunkNotFound, "fetch chunk", errFake)
	}
	return chunk, nil
}

type fakeMetadata struct {
	meta  map[string]domain.DocumentMetadata
	err   error
	calls int
	ids   []string
}

func (f *fakeMetadata) BatchFetchDocumentMetadata(ctx context.Context, ids []string) (map[string]domain.DocumentMetadata, error) {
	f.calls++
	f.ids = append([]string(nil), ids...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}

// fakeGenerator answers by prompt substring.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	prompts   []string
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string, _ domain.CompletionOptions) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for marker, response := range f.responses {
		if strings.Contains(prompt, marker) {
			return response, nil
		}
	}
	return "", nil
}

type fakeCrossEncoder struct {
	scores []float64
	err    error
	got    []string
}

func (f *fakeCrossEncoder) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	f.got = passages
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

type recordingObserver struct {
	mu        sync.Mutex
	branches  map[string]int
	failures  int
	stages    []string
	retrieval int
}

func (o *recordingObserver) ObserveBranch(kind string, ok bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.branches == nil {
		o.branches = make(map[string]int)
	}
	o.branches[kind]++
	if !ok {
		o.failures++
	}
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) ObserveRetrieval(string, int, int, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retrieval++
}

func candidate(id string, distance float64) domain.Candidate {
	return domain.Candidate{
		Chunk: domain.Chunk{
			ChunkID:    id,
			DocumentID: "doc-" + id,
			Level:      domain.LevelParagraph,
			Content:    "content " + id,
		},
		Distance: distance,
	}
}

func branch(weight float64, candidates ...domain.Candidate) BranchResult {
	return BranchResult{Unit: SearchUnit{Weight: weight}, Candidates: candidates}
}

func fusedIDs(results []domain.FusedResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ChunkID)
	}
	return out
}
