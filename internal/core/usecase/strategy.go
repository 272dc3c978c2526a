package usecase

import (
	"context"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

type queryPlan struct {
	units      []SearchUnit
	variants   []domain.QueryVariant
	subQueries []domain.SubQuery
}

// multiQueryStrategy pairs a query transformation with the fusion that suits it.
type multiQueryStrategy interface {
	plan(ctx context.Context, query string, filters domain.RetrievalFilters) queryPlan
	fuse(branches []BranchResult, limit int) []domain.FusedResult
}

type rewriteStrategy struct {
	rewriter *QueryRewriter
	rrfK     int
}

func (s rewriteStrategy) plan(ctx context.Context, query string, filters domain.RetrievalFilters) queryPlan {
	variants := s.rewriter.RewriteQuery(ctx, query)
	base := baseFilter(filters)
	units := make([]SearchUnit, 0, len(variants))
	for _, v := range variants {
		units = append(units, SearchUnit{
			Text:     v.Text,
			Weight:   v.Weight,
			Strategy: v.Strategy,
			Filter:   base,
		})
	}
	return queryPlan{units: units, variants: variants}
}

func (s rewriteStrategy) fuse(branches []BranchResult, limit int) []domain.FusedResult {
	return fuseCandidatesRRF(branches, s.rrfK, limit)
}

type decomposeStrategy struct {
	decomposer *QueryDecomposer
}

func (s decomposeStrategy) plan(ctx context.Context, query string, filters domain.RetrievalFilters) queryPlan {
	subQueries := s.decomposer.Decompose(ctx, query)
	units := make([]SearchUnit, 0, len(subQueries))
	for _, sq := range subQueries {
		filter := baseFilter(filters)
		filter.StatisticalOnly = filter.StatisticalOnly || sq.StatisticalOnly
		if filter.SectionName == "" {
			filter.SectionName = sq.SectionHint
		}
		units = append(units, SearchUnit{
			Text:     sq.Text,
			Weight:   weightOriginal,
			Intent:   sq.Intent,
			Priority: sq.Priority,
			Filter:   filter,
		})
	}
	return queryPlan{units: units, subQueries: subQueries}
}

func (s decomposeStrategy) fuse(branches []BranchResult, limit int) []domain.FusedResult {
	return fuseCandidatesByPriority(branches, limit)
}

func baseFilter(filters domain.RetrievalFilters) domain.SearchFilter {
	return domain.SearchFilter{
		Level:           filters.Level,
		SectionName:     filters.Section,
		StatisticalOnly: filters.StatisticalOnly,
	}
}
