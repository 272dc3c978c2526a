package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

func fusedWith(id string, distance float64, grade, section string, statistical bool) domain.FusedResult {
	c := candidate(id, distance)
	c.Metadata.QualityGrade = grade
	c.SectionName = section
	c.IsStatistical = statistical
	return domain.FusedResult{Candidate: c, FusionScore: 1 - distance}
}

func TestRerankWeightsNormalized(t *testing.T) {
	w := RerankWeights{Quality: 3, Statistical: 1, Section: 1, Semantic: 1}.Normalized()
	assert.InDelta(t, 0.5, w.Quality, 1e-9)
	assert.InDelta(t, 1.0/6, w.Semantic, 1e-9)

	w = RerankWeights{Quality: 0.9, Statistical: 0.2, Section: 0.2, Semantic: 0.2}.Normalized()
	assert.InDelta(t, 0.6, w.Quality, 1e-9)
	assert.InDelta(t, 0.2/1.5, w.Section, 1e-9)
	assert.InDelta(t, 1.0, w.Quality+w.Statistical+w.Section+w.Semantic, 1e-9)
}

func TestRerankWeightsZeroFallsBackToDefaults(t *testing.T) {
	assert.Equal(t, DefaultRerankWeights().Normalized(), RerankWeights{Quality: -1}.Normalized())
}

func TestRerankPrefersHigherQualityGrade(t *testing.T) {
	r := NewReranker(DefaultRerankWeights())
	scored := r.Rerank([]domain.FusedResult{
		fusedWith("c", 0.3, "C", "results", false),
		fusedWith("a", 0.3, "A", "results", false),
	}, "aspirin for headache", 10)

	require.Len(t, scored, 2)
	assert.Equal(t, "a", scored[0].ChunkID)
	assert.Equal(t, 1.0, scored[0].Breakdown.Quality)
	assert.Equal(t, 0.4, scored[1].Breakdown.Quality)
}

func TestScoreQualityUnknownGrade(t *testing.T) {
	assert.Equal(t, 0.5, scoreQuality(""))
	assert.Equal(t, 0.7, scoreQuality(" b "))
}

func TestScoreStatisticalMatrix(t *testing.T) {
	cases := []struct {
		wants, has bool
		want       float64
	}{
		{true, true, 1.0},
		{true, false, 0.3},
		{false, true, 0.6},
		{false, false, 0.5},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, scoreStatistical(tc.wants, tc.has), "scoreStatistical(%v,%v)", tc.wants, tc.has)
	}
}

func TestScoreSectionMonotonicInPriority(t *testing.T) {
	prev := 2.0
	for _, section := range sectionPriorities[domain.IntentEffectiveness] {
		score := scoreSection(domain.IntentEffectiveness, section)
		require.Lessf(t, score, prev, "section %s", section)
		prev = score
	}
	assert.Equal(t, 0.4, scoreSection(domain.IntentEffectiveness, "appendix"))
	assert.InDelta(t, 0.7, scoreSection(domain.IntentMethodology, "Data_Collection_And_Analysis"), 1e-9)
}

func TestScoreSectionComparisonUsesGeneralList(t *testing.T) {
	for _, section := range []string{"abstract", "main_results", "results", "appendix"} {
		assert.Equalf(t, scoreSection(domain.IntentGeneral, section), scoreSection(domain.IntentComparison, section), "section %s", section)
	}
}

func TestRerankScoresWithinBounds(t *testing.T) {
	r := NewReranker(RerankWeights{Quality: 10, Statistical: 0, Section: 5, Semantic: 1})
	fused := []domain.FusedResult{
		fusedWith("a", -0.5, "A", "results", true),
		fusedWith("b", 1.7, "Z", "", false),
		fusedWith("c", 0.5, "B", "methods", true),
	}
	for _, s := range r.Rerank(fused, "statistical significance of treatment", 10) {
		for name, v := range map[string]float64{
			"quality":     s.Breakdown.Quality,
			"statistical": s.Breakdown.Statistical,
			"section":     s.Breakdown.Section,
			"semantic":    s.Breakdown.Semantic,
			"total":       s.RerankScore,
		} {
			assert.GreaterOrEqualf(t, v, 0.0, "%s score for %s", name, s.ChunkID)
			assert.LessOrEqualf(t, v, 1.0, "%s score for %s", name, s.ChunkID)
		}
	}
}

func TestRerankUsesFusionScoreWhenNoDistanceOrIndexScore(t *testing.T) {
	high := fusedWith("high", 0, "", "", false)
	high.DistanceUnknown = true
	high.FusionScore = 0.03
	low := fusedWith("low", 0, "", "", false)
	low.DistanceUnknown = true
	low.FusionScore = 0.01

	scored := NewReranker(DefaultRerankWeights()).Rerank([]domain.FusedResult{low, high}, "query", 10)
	require.Len(t, scored, 2)
	assert.Equal(t, "high", scored[0].ChunkID)
	assert.Equal(t, 1.0, scored[0].Breakdown.Semantic)
	assert.Equal(t, 0.0, scored[1].Breakdown.Semantic)
}

func TestRerankUsesIndexScoreForHybridHits(t *testing.T) {
	near := domain.FusedResult{Candidate: hybridCandidate("near", 0.8), FusionScore: 0.016}
	far := domain.FusedResult{Candidate: hybridCandidate("far", 0.3), FusionScore: 0.016}

	scored := NewReranker(DefaultRerankWeights()).Rerank([]domain.FusedResult{far, near}, "query", 10)
	require.Len(t, scored, 2)
	assert.Equal(t, "near", scored[0].ChunkID)
	assert.InDelta(t, 0.8, scored[0].Breakdown.Semantic, 1e-9)
	assert.InDelta(t, 0.3, scored[1].Breakdown.Semantic, 1e-9)
}

func TestRerankHandlesEmptyInput(t *testing.T) {
	assert.Empty(t, NewReranker(DefaultRerankWeights()).Rerank(nil, "q", 10))
}

func TestRerankTruncatesToTopK(t *testing.T) {
	fused := []domain.FusedResult{
		fusedWith("a", 0.1, "A", "", false),
		fusedWith("b", 0.2, "A", "", false),
		fusedWith("c", 0.3, "A", "", false),
	}
	assert.Len(t, NewReranker(DefaultRerankWeights()).Rerank(fused, "q", 2), 2)
}
