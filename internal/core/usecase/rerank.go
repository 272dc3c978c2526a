package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

const (
	sectionStep    = 0.15
	sectionDefault = 0.4
	qualityUnknown = 0.5

	statisticalMatch   = 1.0
	statisticalMissing = 0.3
	statisticalPresent = 0.6
	statisticalAbsent  = 0.5
)

var qualityScores = map[string]float64{
	"A": 1.0,
	"B": 0.7,
	"C": 0.4,
}

// Ordered from most to least relevant section for each primary query intent.
// Intents without a row, comparison included, use the general list.
var sectionPriorities = map[domain.Intent][]string{
	domain.IntentEffectiveness: {"results", "authors_conclusions", "main_results"},
	domain.IntentSafety:        {"results", "discussion", "adverse_effects"},
	domain.IntentMethodology:   {"methods", "search_methods", "data_collection"},
	domain.IntentStatistical:   {"results", "statistical_analysis"},
	domain.IntentConclusion:    {"authors_conclusions", "discussion"},
	domain.IntentBackground:    {"background", "abstract"},
	domain.IntentGeneral:       {"abstract", "main_results", "authors_conclusions"},
}

type RerankWeights struct {
	Quality     float64 `json:"quality" yaml:"quality"`
	Statistical float64 `json:"statistical" yaml:"statistical"`
	Section     float64 `json:"section" yaml:"section"`
	Semantic    float64 `json:"semantic" yaml:"semantic"`
}

func DefaultRerankWeights() RerankWeights {
	return RerankWeights{Quality: 0.30, Statistical: 0.20, Section: 0.20, Semantic: 0.30}
}

// Normalized scales the weights to sum to 1. Negative weights count as zero;
// an all-zero set falls back to the defaults.
func (w RerankWeights) Normalized() RerankWeights {
	w.Quality = nonNegative(w.Quality)
	w.Statistical = nonNegative(w.Statistical)
	w.Section = nonNegative(w.Section)
	w.Semantic = nonNegative(w.Semantic)

	total := w.Quality + w.Statistical + w.Section + w.Semantic
	if total <= 0 {
		return DefaultRerankWeights().Normalized()
	}
	return RerankWeights{
		Quality:     w.Quality / total,
		Statistical: w.Statistical / total,
		Section:     w.Section / total,
		Semantic:    w.Semantic / total,
	}
}

// Reranker rescoring is pure: no I/O, deterministic for equal inputs.
type Reranker struct {
	weights RerankWeights
}

func NewReranker(weights RerankWeights) *Reranker {
	return &Reranker{weights: weights.Normalized()}
}

func (r *Reranker) Weights() RerankWeights {
	return r.weights
}

func (r *Reranker) Rerank(fused []domain.FusedResult, query string, topK int) []domain.ScoredResult {
	if len(fused) == 0 {
		return nil
	}

	intent := detectQueryIntent(query)
	wantsStatistics := isStatisticalQuery(query)
	normalizeFusion := fusionNormalizer(fused)

	out := make([]domain.ScoredResult, 0, len(fused))
	for _, f := range fused {
		semantic := f.RelevanceScore()
		if f.DistanceUnknown && f.IndexScore <= 0 {
			semantic = normalizeFusion(f.FusionScore)
		}
		breakdown := domain.ScoreBreakdown{
			Quality:     scoreQuality(f.Metadata.QualityGrade),
			Statistical: scoreStatistical(wantsStatistics, f.IsStatistical),
			Section:     scoreSection(intent, f.SectionName),
			Semantic:    semantic,
		}
		out = append(out, domain.ScoredResult{
			FusedResult: f,
			RerankScore: r.combine(breakdown),
			Breakdown:   breakdown,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func (r *Reranker) combine(b domain.ScoreBreakdown) float64 {
	score := r.weights.Quality*b.Quality +
		r.weights.Statistical*b.Statistical +
		r.weights.Section*b.Section +
		r.weights.Semantic*b.Semantic
	return clamp01(score)
}

func scoreQuality(grade string) float64 {
	if score, ok := qualityScores[strings.ToUpper(strings.TrimSpace(grade))]; ok {
		return score
	}
	return qualityUnknown
}

func scoreStatistical(wantsStatistics, hasStatistics bool) float64 {
	switch {
	case wantsStatistics && hasStatistics:
		return statisticalMatch
	case wantsStatistics:
		return statisticalMissing
	case hasStatistics:
		return statisticalPresent
	default:
		return statisticalAbsent
	}
}

func scoreSection(intent domain.Intent, section string) float64 {
	section = strings.ToLower(strings.TrimSpace(section))
	if section == "" {
		return sectionDefault
	}
	priorities, ok := sectionPriorities[intent]
	if !ok {
		priorities = sectionPriorities[domain.IntentGeneral]
	}
	// Exact names first so "main_results" does not score as "results".
	for idx, candidate := range priorities {
		if section == candidate {
			return sectionScoreAt(idx)
		}
	}
	for idx, candidate := range priorities {
		if strings.Contains(section, candidate) {
			return sectionScoreAt(idx)
		}
	}
	return sectionDefault
}

func sectionScoreAt(idx int) float64 {
	return clamp01(1.0 - sectionStep*float64(idx))
}

func fusionNormalizer(fused []domain.FusedResult) func(float64) float64 {
	minScore := fused[0].FusionScore
	maxScore := fused[0].FusionScore
	for _, f := range fused[1:] {
		if f.FusionScore < minScore {
			minScore = f.FusionScore
		}
		if f.FusionScore > maxScore {
			maxScore = f.FusionScore
		}
	}
	rangeScore := maxScore - minScore
	return func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return clamp01((v - minScore) / rangeScore)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
