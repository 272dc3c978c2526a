package usecase

import (
	"math"
	"sort"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

const (
	defaultRRFK = 60
	// Distances closer than this are treated as equal when deduplicating
	// sub-query results; sub-query priority decides instead.
	priorityDistanceTolerance = 0.05
)

// fuseCandidatesRRF accumulates weight/(k+rank) per chunk across branches.
// Ties keep first-seen order.
func fuseCandidatesRRF(branches []BranchResult, rrfK, finalK int) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	order := make([]string, 0, 32)
	acc := make(map[string]*domain.FusedResult, 32)
	for _, branch := range branches {
		if branch.Err != nil {
			continue
		}
		for rank, c := range branch.Candidates {
			fused, ok := acc[c.ChunkID]
			if !ok {
				fused = &domain.FusedResult{Candidate: c}
				acc[c.ChunkID] = fused
				order = append(order, c.ChunkID)
			} else {
				fused.Candidate = keepBestDistance(preferRicherCandidate(fused.Candidate, c), c)
			}
			fused.Contributions = append(fused.Contributions, contributionOf(c, rank, branch.Unit.Weight))
			fused.FusionScore += branch.Unit.Weight / float64(rrfK+rank)
		}
	}

	out := make([]domain.FusedResult, 0, len(order))
	for _, id := range order {
		out = append(out, *acc[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FusionScore > out[j].FusionScore
	})
	return trimFused(out, finalK)
}

// fuseCandidatesByPriority keeps one occurrence per chunk, then interleaves
// intent groups so no single aspect fills the head of the list.
func fuseCandidatesByPriority(branches []BranchResult, topK int) []domain.FusedResult {
	order := make([]string, 0, 32)
	acc := make(map[string]*domain.FusedResult, 32)
	for _, branch := range branches {
		if branch.Err != nil {
			continue
		}
		for rank, c := range branch.Candidates {
			contribution := contributionOf(c, rank, branch.Unit.Weight)
			fused, ok := acc[c.ChunkID]
			if !ok {
				acc[c.ChunkID] = &domain.FusedResult{
					Candidate:     c,
					Contributions: []domain.RankContribution{contribution},
				}
				order = append(order, c.ChunkID)
				continue
			}
			fused.Contributions = append(fused.Contributions, contribution)
			if preferOccurrence(fused.Candidate, c) {
				fused.Candidate = preferRicherCandidate(c, fused.Candidate)
			} else {
				fused.Candidate = preferRicherCandidate(fused.Candidate, c)
			}
		}
	}

	deduped := make([]domain.FusedResult, 0, len(order))
	for _, id := range order {
		fused := *acc[id]
		fused.FusionScore = fused.RelevanceScore()
		deduped = append(deduped, fused)
	}
	return trimFused(interleaveByIntent(deduped), topK)
}

// preferOccurrence reports whether next should replace current.
func preferOccurrence(current, next domain.Candidate) bool {
	diff := next.EffectiveDistance() - current.EffectiveDistance()
	if math.Abs(diff) < priorityDistanceTolerance {
		if next.Provenance.Priority != current.Provenance.Priority {
			return next.Provenance.Priority < current.Provenance.Priority
		}
	}
	return diff < 0
}

// interleaveByIntent groups by sub-query intent, sorts each group by distance
// and emits the i-th element of every group (intents in lexical order) for
// increasing i.
func interleaveByIntent(results []domain.FusedResult) []domain.FusedResult {
	groups := make(map[domain.Intent][]domain.FusedResult)
	for _, r := range results {
		intent := r.Provenance.Intent
		if intent == "" {
			intent = domain.IntentGeneral
		}
		groups[intent] = append(groups[intent], r)
	}

	intents := make([]domain.Intent, 0, len(groups))
	longest := 0
	for intent, group := range groups {
		intents = append(intents, intent)
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].EffectiveDistance() < group[j].EffectiveDistance()
		})
		if len(group) > longest {
			longest = len(group)
		}
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i] < intents[j] })

	seen := make(map[string]struct{}, len(results))
	out := make([]domain.FusedResult, 0, len(results))
	for i := 0; i < longest; i++ {
		for _, intent := range intents {
			group := groups[intent]
			if i >= len(group) {
				continue
			}
			if _, dup := seen[group[i].ChunkID]; dup {
				continue
			}
			seen[group[i].ChunkID] = struct{}{}
			out = append(out, group[i])
		}
	}
	return out
}

func contributionOf(c domain.Candidate, rank int, weight float64) domain.RankContribution {
	return domain.RankContribution{
		Branch:   c.Provenance.Branch,
		Strategy: c.Provenance.Strategy,
		Intent:   c.Provenance.Intent,
		Rank:     rank,
		Weight:   weight,
	}
}

func trimFused(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

// preferRicherCandidate keeps current's identity, distance and provenance and
// fills empty fields from other.
func preferRicherCandidate(current, other domain.Candidate) domain.Candidate {
	if current.Content == "" && other.Content != "" {
		current.Content = other.Content
	}
	if current.DocumentID == "" {
		current.DocumentID = other.DocumentID
	}
	if current.Level == "" {
		current.Level = other.Level
	}
	if current.SectionName == "" {
		current.SectionName = other.SectionName
	}
	if current.SubsectionName == "" {
		current.SubsectionName = other.SubsectionName
	}
	if current.ParentChunkID == "" {
		current.ParentChunkID = other.ParentChunkID
	}
	current.IsStatistical = current.IsStatistical || other.IsStatistical
	if current.Metadata.IsZero() {
		current.Metadata = other.Metadata
	}
	if current.DistanceUnknown && !other.DistanceUnknown {
		current.Distance = other.Distance
		current.DistanceUnknown = false
		current.IndexScore = 0
	}
	return current
}

func keepBestDistance(current, other domain.Candidate) domain.Candidate {
	if other.DistanceUnknown {
		if current.DistanceUnknown && other.IndexScore > current.IndexScore {
			current.IndexScore = other.IndexScore
		}
		return current
	}
	if other.Distance < current.Distance {
		current.Distance = other.Distance
	}
	return current
}
