package domain

// Strategy selects how a query is expanded and how branch results are fused.
type Strategy string

const (
	StrategyRewrite   Strategy = "rewrite"
	StrategyDecompose Strategy = "decompose"
)

func ParseStrategy(raw string) (Strategy, bool) {
	switch Strategy(raw) {
	case StrategyRewrite:
		return StrategyRewrite, true
	case StrategyDecompose:
		return StrategyDecompose, true
	default:
		return "", false
	}
}

type RetrievalFilters struct {
	Level           ChunkLevel `json:"level,omitempty"`
	Section         string     `json:"section,omitempty"`
	StatisticalOnly bool       `json:"statistical_only,omitempty"`
	Topic           string     `json:"topic,omitempty"`
	QualityGrade    string     `json:"quality_grade,omitempty"`
}

type RetrievalRequest struct {
	Query    string           `json:"query"`
	TopK     int              `json:"top_k"`
	Strategy Strategy         `json:"strategy,omitempty"`
	Filters  RetrievalFilters `json:"filters"`
}

type RankContribution struct {
	Branch   int             `json:"branch"`
	Strategy VariantStrategy `json:"strategy,omitempty"`
	Intent   Intent          `json:"intent,omitempty"`
	Rank     int             `json:"rank"`
	Weight   float64         `json:"weight"`
}

type FusedResult struct {
	Candidate
	Contributions []RankContribution `json:"contributions"`
	FusionScore   float64            `json:"fusion_score"`
}

type ScoreBreakdown struct {
	Quality     float64 `json:"quality"`
	Statistical float64 `json:"statistical"`
	Section     float64 `json:"section"`
	Semantic    float64 `json:"semantic"`
}

type ScoredResult struct {
	FusedResult
	RerankScore       float64        `json:"rerank_score"`
	Breakdown         ScoreBreakdown `json:"score_breakdown"`
	CrossEncoderScore float64        `json:"cross_encoder_score,omitempty"`
	CrossEncoded      bool           `json:"cross_encoded,omitempty"`
}

type EnrichedResult struct {
	ScoredResult
	EnrichedContent string  `json:"enriched_content"`
	Relevance       float64 `json:"relevance"`
}

type RetrievalResult struct {
	Query          string           `json:"query"`
	Strategy       Strategy         `json:"strategy"`
	Variants       []QueryVariant   `json:"variants,omitempty"`
	SubQueries     []SubQuery       `json:"sub_queries,omitempty"`
	Results        []EnrichedResult `json:"results"`
	Branches       int              `json:"branches"`
	FailedBranches int              `json:"failed_branches"`
	NoEvidence     bool             `json:"no_evidence"`
}

type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// AllBranchesFailed reports a total outage of the search services for this
// request, as opposed to a search that simply found nothing.
func (r *RetrievalResult) AllBranchesFailed() bool {
	return r != nil && r.Branches > 0 && r.FailedBranches == r.Branches
}

// OutageError converts a total outage into an error for request-handling layers.
func (r *RetrievalResult) OutageError(operation string) error {
	if !r.AllBranchesFailed() {
		return nil
	}
	return WrapError(ErrTemporary, operation, ErrAllBranchesFailed)
}
