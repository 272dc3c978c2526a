package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

const (
	defaultTopK        = 10
	maxTopK            = 50
	defaultFusionLimit = 20
)

type RetrievalConfig struct {
	Strategy    domain.Strategy
	TopK        int
	FusionLimit int
	RRFK        int
	Fanout      FanoutOptions
}

// RetrievalUseCase runs transform, fan-out search, fusion, rerank and
// enrichment for one query. It holds no per-request state.
type RetrievalUseCase struct {
	pc              PipelineContext
	strategies      map[domain.Strategy]multiQueryStrategy
	defaultStrategy domain.Strategy
	searcher        *FanoutSearcher
	reranker        *Reranker
	crossEncoder    *CrossEncoderStage
	enricher        *ContextEnricher
	topK            int
	fusionLimit     int
}

// NewRetrievalUseCase wires the pipeline. crossEncoder may be nil to disable
// the second rerank stage.
func NewRetrievalUseCase(
	pc PipelineContext,
	rewriter *QueryRewriter,
	decomposer *QueryDecomposer,
	reranker *Reranker,
	crossEncoder *CrossEncoderStage,
	enricher *ContextEnricher,
	cfg RetrievalConfig,
) (*RetrievalUseCase, error) {
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	if rewriter == nil {
		rewriter = NewQueryRewriter(pc.Generator, WithRewriterLogger(pc.logger()))
	}
	if decomposer == nil {
		decomposer = NewQueryDecomposer(pc.Generator, WithDecomposerLogger(pc.logger()))
	}
	if reranker == nil {
		reranker = NewReranker(DefaultRerankWeights())
	}
	if enricher == nil {
		enricher = NewContextEnricher(pc.Index, nil, 0, pc.logger())
	}

	strategy := cfg.Strategy
	if strategy == "" {
		strategy = domain.StrategyRewrite
	}
	if _, ok := domain.ParseStrategy(string(strategy)); !ok {
		return nil, domain.WrapError(domain.ErrConfiguration, "new retrieval use case", fmt.Errorf("unknown strategy %q", strategy))
	}

	uc := &RetrievalUseCase{
		pc: pc,
		strategies: map[domain.Strategy]multiQueryStrategy{
			domain.StrategyRewrite:   rewriteStrategy{rewriter: rewriter, rrfK: cfg.RRFK},
			domain.StrategyDecompose: decomposeStrategy{decomposer: decomposer},
		},
		defaultStrategy: strategy,
		searcher:        NewFanoutSearcher(pc, cfg.Fanout),
		reranker:        reranker,
		crossEncoder:    crossEncoder,
		enricher:        enricher,
		topK:            cfg.TopK,
		fusionLimit:     cfg.FusionLimit,
	}
	if uc.topK <= 0 {
		uc.topK = defaultTopK
	}
	if uc.fusionLimit <= 0 {
		uc.fusionLimit = defaultFusionLimit
	}
	return uc, nil
}

func (uc *RetrievalUseCase) Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve evidence", fmt.Errorf("query is required"))
	}

	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = uc.defaultStrategy
	}
	strategy, ok := uc.strategies[strategyName]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve evidence", fmt.Errorf("unknown strategy %q", strategyName))
	}

	topK := req.TopK
	if topK <= 0 {
		topK = uc.topK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	logger := uc.pc.logger()
	observer := uc.pc.observer()
	started := time.Now()

	stage := time.Now()
	plan := strategy.plan(ctx, query, req.Filters)
	observer.ObserveStage("transform", time.Since(stage))

	stage = time.Now()
	branches := uc.searcher.Search(ctx, plan.units, req.Filters)
	observer.ObserveStage("fanout", time.Since(stage))
	failed := countFailed(branches)

	result := &domain.RetrievalResult{
		Query:          query,
		Strategy:       strategyName,
		Variants:       plan.variants,
		SubQueries:     plan.subQueries,
		Results:        []domain.EnrichedResult{},
		Branches:       len(branches),
		FailedBranches: failed,
	}
	if result.AllBranchesFailed() {
		logger.Error("retrieval_all_branches_failed", "strategy", strategyName, "branches", len(branches))
	}

	stage = time.Now()
	fusionLimit := uc.fusionLimit
	if fusionLimit < topK {
		fusionLimit = topK
	}
	fused := strategy.fuse(branches, fusionLimit)
	observer.ObserveStage("fusion", time.Since(stage))

	if len(fused) > 0 {
		stage = time.Now()
		rerankLimit := topK
		if uc.crossEncoder != nil && uc.crossEncoder.CandidateLimit() > rerankLimit {
			rerankLimit = uc.crossEncoder.CandidateLimit()
		}
		scored := uc.reranker.Rerank(fused, query, rerankLimit)
		if uc.crossEncoder != nil {
			scored = uc.crossEncoder.Apply(ctx, query, scored)
		}
		scored = truncateScored(scored, topK)
		observer.ObserveStage("rerank", time.Since(stage))

		stage = time.Now()
		result.Results = uc.enricher.Enrich(ctx, scored)
		observer.ObserveStage("enrich", time.Since(stage))
	}

	result.NoEvidence = len(result.Results) == 0
	observer.ObserveRetrieval(string(strategyName), len(result.Results), failed, time.Since(started))
	logger.Info("retrieval_completed",
		"strategy", strategyName,
		"branches", len(branches),
		"failed_branches", failed,
		"fused", len(fused),
		"results", len(result.Results),
		"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
	)
	return result, nil
}
