package usecase

import (
	"strings"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

type intentFamily struct {
	intent   domain.Intent
	keywords []string
}

// Families used to decide whether a query carries several informational needs.
// Order is the detection order used by the keyword decomposition.
var decompositionFamilies = []intentFamily{
	{domain.IntentEffectiveness, []string{"effective", "efficacy", "benefit", "improve", "work", "help"}},
	{domain.IntentSafety, []string{"safe", "safety", "adverse", "side effect", "harm", "risk", "toxic"}},
	{domain.IntentComparison, []string{"compare", "versus", "vs ", "better than", "superior to"}},
	{domain.IntentMethodology, []string{"method", "methodology", "design", "study design", "how study"}},
	{domain.IntentStatistical, []string{"statistical", "statistically", "p-value", "confidence interval", "evidence", "odds ratio", "risk ratio"}},
}

// Families used to pick the single primary intent of a query, first match wins.
var primaryIntentFamilies = []intentFamily{
	{domain.IntentEffectiveness, []string{"effective", "efficacy", "treatment", "therapy", "intervention", "benefit"}},
	{domain.IntentSafety, []string{"safety", "safe", "adverse", "side effect", "harm", "risk", "toxicity"}},
	{domain.IntentMethodology, []string{"method", "how", "design", "study design", "search strategy", "criteria"}},
	{domain.IntentStatistical, []string{"statistical", "p-value", "confidence", "significance", "evidence"}},
	{domain.IntentConclusion, []string{"conclusion", "recommend", "implication", "should", "guideline"}},
	{domain.IntentBackground, []string{"what is", "overview", "background", "about", "define"}},
}

var statisticalPhrases = []string{
	"statistical", "statistically", "p-value", "p value", "confidence interval",
	"significance", "significant", "odds ratio", "risk ratio", "hazard ratio",
	"effect size", "mean difference", "standardized mean difference",
	"meta-analysis", "pooled", "heterogeneity",
}

// Abbreviations that only count as whole tokens ("or" inside "for" does not).
var statisticalAbbreviations = []string{"ci", "or", "rr", "hr"}

var multiOutcomePhrases = []string{"both", "as well as", "along with"}

var intentSections = map[domain.Intent]string{
	domain.IntentEffectiveness: "results",
	domain.IntentSafety:        "results",
	domain.IntentComparison:    "results",
	domain.IntentMethodology:   "methods",
	domain.IntentStatistical:   "results",
	domain.IntentConclusion:    "authors_conclusions",
	domain.IntentBackground:    "background",
}

func sectionHintForIntent(intent domain.Intent) string {
	return intentSections[intent]
}

func detectQueryIntent(query string) domain.Intent {
	lower := strings.ToLower(query)
	for _, family := range primaryIntentFamilies {
		if containsAny(lower, family.keywords) {
			return family.intent
		}
	}
	return domain.IntentGeneral
}

// detectIntentFamilies returns every decomposition family matched by the query,
// in family order. An empty result means no family matched.
func detectIntentFamilies(query string) []domain.Intent {
	lower := strings.ToLower(query)
	out := make([]domain.Intent, 0, len(decompositionFamilies))
	for _, family := range decompositionFamilies {
		if containsAny(lower, family.keywords) {
			out = append(out, family.intent)
		}
	}
	return out
}

func familyKeywords(intent domain.Intent) []string {
	for _, family := range decompositionFamilies {
		if family.intent == intent {
			return family.keywords
		}
	}
	return nil
}

func isStatisticalQuery(query string) bool {
	lower := strings.ToLower(query)
	if containsAny(lower, statisticalPhrases) {
		return true
	}
	tokens := toTokenSet(lower)
	for _, abbr := range statisticalAbbreviations {
		if _, ok := tokens[abbr]; ok {
			return true
		}
	}
	return false
}

func shouldDecompose(query string) bool {
	if len(detectIntentFamilies(query)) >= 2 {
		return true
	}

	lower := strings.ToLower(query)
	if strings.Contains(lower, " and ") && containsAny(lower, []string{"effective", "safe", "compare"}) {
		return true
	}
	if containsAny(lower, []string{"compare", "versus"}) {
		return true
	}
	if _, ok := toTokenSet(lower)["vs"]; ok {
		return true
	}
	return containsAny(lower, multiOutcomePhrases)
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
