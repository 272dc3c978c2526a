package domain

type VariantStrategy string

const (
	StrategyOriginal         VariantStrategy = "original"
	StrategySynonym          VariantStrategy = "synonym"
	StrategyLLMReformulation VariantStrategy = "llm_reformulation"
	StrategyHyDE             VariantStrategy = "hyde"
)

type QueryVariant struct {
	Text     string          `json:"text"`
	Strategy VariantStrategy `json:"strategy"`
	Weight   float64         `json:"weight"`
}

type Intent string

const (
	IntentEffectiveness Intent = "effectiveness"
	IntentSafety        Intent = "safety"
	IntentComparison    Intent = "comparison"
	IntentMethodology   Intent = "methodology"
	IntentStatistical   Intent = "statistical"
	IntentConclusion    Intent = "conclusion"
	IntentBackground    Intent = "background"
	IntentGeneral       Intent = "general"
)

func ParseIntent(raw string) Intent {
	switch Intent(raw) {
	case IntentEffectiveness, IntentSafety, IntentComparison, IntentMethodology,
		IntentStatistical, IntentConclusion, IntentBackground, IntentGeneral:
		return Intent(raw)
	default:
		return IntentGeneral
	}
}

// SubQuery is one focused aspect of a multi-part question.
// Priority runs from 1 (high) to 3 (low).
type SubQuery struct {
	Text            string `json:"text"`
	Intent          Intent `json:"intent"`
	Priority        int    `json:"priority"`
	StatisticalOnly bool   `json:"statistical_only"`
	SectionHint     string `json:"section_hint,omitempty"`
}
