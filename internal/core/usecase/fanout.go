package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
)

const (
	defaultKPerBranch      = 10
	defaultParallelism     = 4
	defaultBranchTimeout   = 8 * time.Second
	defaultMetadataTimeout = 3 * time.Second
)

// SearchUnit is one independent index search: a rewrite variant or a sub-query.
type SearchUnit struct {
	Text     string
	Weight   float64
	Strategy domain.VariantStrategy
	Intent   domain.Intent
	Priority int
	Filter   domain.SearchFilter
}

func (u SearchUnit) kind() string {
	if u.Strategy != "" {
		return string(u.Strategy)
	}
	if u.Intent != "" {
		return "subquery_" + string(u.Intent)
	}
	return "unknown"
}

type BranchResult struct {
	Unit       SearchUnit
	Candidates []domain.Candidate
	Err        error
}

type FanoutSearcher struct {
	embedder        ports.Embedder
	index           ports.ChunkIndex
	metadata        ports.DocumentMetadataSource
	observer        ports.RetrievalObserver
	kPerBranch      int
	parallelism     int
	branchTimeout   time.Duration
	metadataTimeout time.Duration
	logger          *slog.Logger
}

type FanoutOptions struct {
	KPerBranch    int
	Parallelism   int
	BranchTimeout time.Duration
	// MetadataTimeout bounds the batch metadata join, which runs even after
	// the request deadline has passed.
	MetadataTimeout time.Duration
}

func NewFanoutSearcher(pc PipelineContext, opts FanoutOptions) *FanoutSearcher {
	s := &FanoutSearcher{
		embedder:        pc.Embedder,
		index:           pc.Index,
		metadata:        pc.Metadata,
		observer:        pc.observer(),
		kPerBranch:      opts.KPerBranch,
		parallelism:     opts.Parallelism,
		branchTimeout:   opts.BranchTimeout,
		metadataTimeout: opts.MetadataTimeout,
		logger:          pc.logger(),
	}
	if s.kPerBranch <= 0 {
		s.kPerBranch = defaultKPerBranch
	}
	if s.parallelism <= 0 {
		s.parallelism = defaultParallelism
	}
	if s.branchTimeout <= 0 {
		s.branchTimeout = defaultBranchTimeout
	}
	if s.metadataTimeout <= 0 {
		s.metadataTimeout = defaultMetadataTimeout
	}
	return s
}

// Search runs every unit concurrently and never fails as a whole: a branch
// error is recorded on its BranchResult and the other branches continue.
// When ctx expires, branches still running fail and finished ones are kept
// with their metadata. Results are returned in unit order.
func (s *FanoutSearcher) Search(ctx context.Context, units []SearchUnit, filters domain.RetrievalFilters) []BranchResult {
	results := make([]BranchResult, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, unit := range units {
		g.Go(func() error {
			results[i] = s.searchBranch(gctx, i, unit)
			return nil
		})
	}
	_ = g.Wait()

	s.attachMetadata(ctx, results)
	for i := range results {
		if results[i].Err != nil {
			continue
		}
		results[i].Candidates = applyPostFilters(results[i].Candidates, filters)
		for rank := range results[i].Candidates {
			results[i].Candidates[rank].Provenance.Rank = rank
		}
	}
	return results
}

func (s *FanoutSearcher) searchBranch(ctx context.Context, branch int, unit SearchUnit) BranchResult {
	start := time.Now()
	candidates, err := s.runBranch(ctx, branch, unit)
	s.observer.ObserveBranch(unit.kind(), err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("fanout_branch_failed",
			"branch", branch,
			"kind", unit.kind(),
			"query", truncateRunes(unit.Text, 80),
			"error", err,
		)
		return BranchResult{Unit: unit, Err: err}
	}
	return BranchResult{Unit: unit, Candidates: candidates}
}

func (s *FanoutSearcher) runBranch(ctx context.Context, branch int, unit SearchUnit) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	branchCtx, cancel := context.WithTimeout(ctx, s.branchTimeout)
	defer cancel()

	vector, err := s.embedder.EmbedQuery(branchCtx, unit.Text)
	if err != nil {
		return nil, fmt.Errorf("embed branch query: %w", err)
	}

	found, err := s.index.Search(branchCtx, ports.IndexQuery{
		Vector: vector,
		Text:   unit.Text,
		Limit:  s.kPerBranch,
		Filter: unit.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunk index: %w", err)
	}

	out := make([]domain.Candidate, 0, len(found))
	for _, c := range found {
		if c.ChunkID == "" {
			continue
		}
		c.Distance = domain.ClampDistance(c.Distance)
		c.Provenance = domain.Provenance{
			Branch:   branch,
			Source:   unit.Text,
			Strategy: unit.Strategy,
			Weight:   unit.Weight,
			Intent:   unit.Intent,
			Priority: unit.Priority,
		}
		out = append(out, c)
	}
	return out, nil
}

// attachMetadata resolves document metadata with a single batch call per
// request. It is detached from ctx cancellation so candidates that arrived
// before the deadline still get joined. A failed lookup leaves metadata empty.
func (s *FanoutSearcher) attachMetadata(ctx context.Context, results []BranchResult) {
	if s.metadata == nil {
		return
	}

	unique := make(map[string]struct{})
	for _, r := range results {
		for _, c := range r.Candidates {
			if c.DocumentID != "" && c.Metadata.IsZero() {
				unique[c.DocumentID] = struct{}{}
			}
		}
	}
	if len(unique) == 0 {
		return
	}
	ids := make([]string, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.metadataTimeout)
	defer cancel()
	meta, err := s.metadata.BatchFetchDocumentMetadata(fetchCtx, ids)
	if err != nil {
		s.logger.Warn("document_metadata_lookup_failed", "documents", len(ids), "error", err)
		return
	}

	for i := range results {
		for j := range results[i].Candidates {
			c := &results[i].Candidates[j]
			if m, ok := meta[c.DocumentID]; ok && c.Metadata.IsZero() {
				c.Metadata = m
			}
		}
	}
}

func applyPostFilters(candidates []domain.Candidate, filters domain.RetrievalFilters) []domain.Candidate {
	topic := strings.TrimSpace(filters.Topic)
	grade := strings.TrimSpace(filters.QualityGrade)
	if topic == "" && grade == "" {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if topic != "" && !strings.EqualFold(c.Metadata.TopicName, topic) {
			continue
		}
		if grade != "" && !strings.EqualFold(c.Metadata.QualityGrade, grade) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func countFailed(results []BranchResult) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	return failed
}
