package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

func TestFuseCandidatesRRFWeightedRanks(t *testing.T) {
	variantA := branch(1.0, candidate("x", 0.2), candidate("y", 0.3), candidate("z", 0.4))
	variantB := branch(0.8, candidate("y", 0.25), candidate("x", 0.35), candidate("w", 0.5))

	fused := fuseCandidatesRRF([]BranchResult{variantA, variantB}, 60, 10)

	require.Equal(t, []string{"x", "y", "z", "w"}, fusedIDs(fused))
	assert.InDelta(t, 1.0/60+0.8/61, fused[0].FusionScore, 1e-12)
	assert.InDelta(t, 1.0/61+0.8/60, fused[1].FusionScore, 1e-12)
	assert.Len(t, fused[0].Contributions, 2)
}

func TestFuseCandidatesRRFKeepsBestDistance(t *testing.T) {
	fused := fuseCandidatesRRF([]BranchResult{
		branch(1.0, candidate("a", 0.4)),
		branch(0.9, candidate("a", 0.1)),
	}, 60, 10)

	require.Len(t, fused, 1)
	assert.Equal(t, 0.1, fused[0].Distance)
}

func TestFuseCandidatesRRFKeepsBestIndexScoreForHybridHits(t *testing.T) {
	fused := fuseCandidatesRRF([]BranchResult{
		branch(1.0, hybridCandidate("a", 0.4)),
		branch(0.9, hybridCandidate("a", 0.7)),
	}, 60, 10)

	require.Len(t, fused, 1)
	assert.InDelta(t, 0.7, fused[0].IndexScore, 1e-12)
	assert.InDelta(t, 0.7, fused[0].RelevanceScore(), 1e-12)
}

func TestFuseCandidatesRRFTieKeepsFirstSeen(t *testing.T) {
	fused := fuseCandidatesRRF([]BranchResult{
		branch(1.0, candidate("b", 0.2)),
		branch(1.0, candidate("a", 0.2)),
	}, 60, 10)

	assert.Equal(t, []string{"b", "a"}, fusedIDs(fused))
}

func TestFuseCandidatesRRFSkipsFailedBranches(t *testing.T) {
	failed := BranchResult{Unit: SearchUnit{Weight: 1}, Err: errFake}
	fused := fuseCandidatesRRF([]BranchResult{failed, branch(1.0, candidate("a", 0.1))}, 0, 10)
	assert.Equal(t, []string{"a"}, fusedIDs(fused))
}

func TestFuseCandidatesRRFTruncates(t *testing.T) {
	fused := fuseCandidatesRRF([]BranchResult{
		branch(1.0, candidate("a", 0.1), candidate("b", 0.2), candidate("c", 0.3)),
	}, 60, 2)
	assert.Len(t, fused, 2)
}

func TestFuseCandidatesNoDuplicateChunkIDs(t *testing.T) {
	branches := []BranchResult{
		branch(1.0, candidate("a", 0.1), candidate("b", 0.2), candidate("c", 0.3)),
		branch(0.8, candidate("c", 0.1), candidate("a", 0.2)),
		branch(0.9, candidate("b", 0.3), candidate("d", 0.3)),
	}
	for name, fused := range map[string][]domain.FusedResult{
		"rrf":      fuseCandidatesRRF(branches, 60, 10),
		"priority": fuseCandidatesByPriority(branches, 10),
	} {
		seen := map[string]bool{}
		for _, r := range fused {
			require.Falsef(t, seen[r.ChunkID], "%s: duplicate chunk %s", name, r.ChunkID)
			seen[r.ChunkID] = true
		}
		assert.Lenf(t, seen, 4, "%s: unique chunks", name)
	}
}

func subQueryCandidate(id string, distance float64, intent domain.Intent, priority int) domain.Candidate {
	c := candidate(id, distance)
	c.Provenance.Intent = intent
	c.Provenance.Priority = priority
	return c
}

func hybridCandidate(id string, score float64) domain.Candidate {
	c := candidate(id, 0)
	c.DistanceUnknown = true
	c.IndexScore = score
	return c
}

func TestFuseCandidatesByPriorityPrefersHigherPriorityWithinTolerance(t *testing.T) {
	fused := fuseCandidatesByPriority([]BranchResult{
		branch(1.0, subQueryCandidate("a", 0.30, domain.IntentSafety, 2)),
		branch(1.0, subQueryCandidate("a", 0.32, domain.IntentEffectiveness, 1)),
	}, 10)

	require.Len(t, fused, 1)
	assert.Equal(t, 1, fused[0].Provenance.Priority)
	assert.Equal(t, 0.32, fused[0].Distance)
	assert.InDelta(t, 0.68, fused[0].FusionScore, 1e-9)
}

func TestFuseCandidatesByPriorityPrefersCloserOutsideTolerance(t *testing.T) {
	fused := fuseCandidatesByPriority([]BranchResult{
		branch(1.0, subQueryCandidate("a", 0.40, domain.IntentEffectiveness, 1)),
		branch(1.0, subQueryCandidate("a", 0.10, domain.IntentSafety, 2)),
	}, 10)

	require.Len(t, fused, 1)
	assert.Equal(t, 0.10, fused[0].Distance)
	assert.Equal(t, domain.IntentSafety, fused[0].Provenance.Intent)
}

func TestFuseCandidatesByPriorityUsesIndexScoreForHybridHits(t *testing.T) {
	strong := hybridCandidate("a", 0.90)
	strong.Provenance.Intent = domain.IntentSafety
	strong.Provenance.Priority = 2
	weak := hybridCandidate("a", 0.60)
	weak.Provenance.Intent = domain.IntentEffectiveness
	weak.Provenance.Priority = 1

	fused := fuseCandidatesByPriority([]BranchResult{branch(1.0, weak), branch(1.0, strong)}, 10)

	require.Len(t, fused, 1)
	assert.Equal(t, domain.IntentSafety, fused[0].Provenance.Intent, "scores 0.3 apart are not a priority tie")
	assert.InDelta(t, 0.90, fused[0].FusionScore, 1e-9)
}

func TestFuseCandidatesByPriorityOrdersHybridHitsByScore(t *testing.T) {
	near := hybridCandidate("near", 0.8)
	far := hybridCandidate("far", 0.3)
	for _, c := range []*domain.Candidate{&near, &far} {
		c.Provenance.Intent = domain.IntentEffectiveness
		c.Provenance.Priority = 1
	}

	fused := fuseCandidatesByPriority([]BranchResult{branch(1.0, far, near)}, 10)

	require.Equal(t, []string{"near", "far"}, fusedIDs(fused))
	assert.InDelta(t, 0.8, fused[0].FusionScore, 1e-9)
	assert.InDelta(t, 0.3, fused[1].FusionScore, 1e-9)
}

func TestFuseCandidatesByPriorityInterleavesIntents(t *testing.T) {
	fused := fuseCandidatesByPriority([]BranchResult{
		branch(1.0,
			subQueryCandidate("e1", 0.10, domain.IntentEffectiveness, 1),
			subQueryCandidate("e2", 0.20, domain.IntentEffectiveness, 1),
			subQueryCandidate("e3", 0.30, domain.IntentEffectiveness, 1),
		),
		branch(1.0,
			subQueryCandidate("s1", 0.50, domain.IntentSafety, 2),
			subQueryCandidate("s2", 0.60, domain.IntentSafety, 2),
		),
	}, 4)

	assert.Equal(t, []string{"e1", "s1", "e2", "s2"}, fusedIDs(fused))
}

func TestInterleaveByIntentTreatsEmptyIntentAsGeneral(t *testing.T) {
	results := []domain.FusedResult{
		{Candidate: subQueryCandidate("g", 0.1, "", 1)},
		{Candidate: subQueryCandidate("b", 0.2, domain.IntentBackground, 1)},
	}
	assert.Equal(t, []string{"b", "g"}, fusedIDs(interleaveByIntent(results)))
}

func TestPreferRicherCandidateFillsMissingFields(t *testing.T) {
	current := domain.Candidate{Chunk: domain.Chunk{ChunkID: "a"}, Distance: 0.5, DistanceUnknown: true, IndexScore: 0.4}
	other := candidate("a", 0.2)
	other.SectionName = "results"
	other.Metadata = domain.DocumentMetadata{QualityGrade: "A"}

	merged := preferRicherCandidate(current, other)
	assert.Equal(t, other.Content, merged.Content)
	assert.Equal(t, "results", merged.SectionName)
	assert.Equal(t, "A", merged.Metadata.QualityGrade)
	assert.False(t, merged.DistanceUnknown)
	assert.Equal(t, 0.2, merged.Distance)
	assert.Zero(t, merged.IndexScore)
}
