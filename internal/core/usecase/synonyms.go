package usecase

import (
	"strings"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

// SynonymEntry maps a lay or clinical term to the vocabulary used in reviews.
type SynonymEntry struct {
	Term     string   `yaml:"term"`
	Synonyms []string `yaml:"synonyms"`
}

// DefaultSynonymTable is scanned in order so expansions are reproducible.
func DefaultSynonymTable() []SynonymEntry {
	return []SynonymEntry{
		// cancer
		{"lung cancer", []string{"NSCLC", "SCLC", "pulmonary carcinoma", "bronchogenic carcinoma"}},
		{"breast cancer", []string{"mammary carcinoma", "breast neoplasm", "mammary neoplasm"}},
		{"colorectal cancer", []string{"CRC", "colon cancer", "rectal cancer", "bowel cancer"}},
		{"prostate cancer", []string{"prostatic neoplasm", "prostatic carcinoma"}},
		{"melanoma", []string{"malignant melanoma", "skin cancer"}},
		{"pancreatic cancer", []string{"pancreatic carcinoma", "pancreatic neoplasm"}},

		// interventions
		{"chemotherapy", []string{"cytotoxic therapy", "antineoplastic agents", "chemo"}},
		{"immunotherapy", []string{"immune checkpoint inhibitor", "PD-1", "PD-L1", "CTLA-4"}},
		{"radiation therapy", []string{"radiotherapy", "RT", "radiation treatment"}},
		{"surgery", []string{"surgical intervention", "operative procedure", "resection"}},
		{"targeted therapy", []string{"molecular targeted therapy", "biological therapy"}},

		// conditions
		{"asthma", []string{"bronchial asthma", "reactive airway disease"}},
		{"diabetes", []string{"diabetes mellitus", "DM", "hyperglycemia"}},
		{"hypertension", []string{"high blood pressure", "HTN", "elevated blood pressure"}},
		{"obesity", []string{"overweight", "excessive body weight", "BMI"}},
		{"depression", []string{"major depressive disorder", "MDD", "depressive disorder"}},
		{"anxiety", []string{"anxiety disorder", "GAD", "generalized anxiety"}},
		{"ADHD", []string{"attention deficit hyperactivity disorder", "attention deficit disorder", "ADD"}},
		{"autism", []string{"autism spectrum disorder", "ASD", "autistic disorder"}},

		// populations
		{"children", []string{"pediatric", "paediatric", "child", "infant", "adolescent"}},
		{"elderly", []string{"geriatric", "older adults", "aged", "senior"}},
		{"adults", []string{"adult population", "grown"}},
		{"pregnant", []string{"pregnancy", "gestational", "prenatal", "antenatal"}},

		// complementary medicine
		{"acupuncture", []string{"needle therapy", "traditional Chinese medicine", "TCM"}},
		{"herbal medicine", []string{"botanical medicine", "phytotherapy", "herbal therapy"}},
		{"meditation", []string{"mindfulness", "contemplative practice"}},
		{"yoga", []string{"hatha yoga", "yogic practice"}},
		{"massage", []string{"manual therapy", "soft tissue manipulation"}},

		// outcomes
		{"effective", []string{"efficacy", "efficacious", "beneficial", "successful"}},
		{"treatment", []string{"therapy", "intervention", "management"}},
		{"prevention", []string{"prophylaxis", "preventive", "preventative"}},
		{"pain", []string{"analgesia", "pain relief", "pain management", "nociception"}},
		{"infection", []string{"infectious disease", "bacterial infection", "viral infection"}},
		{"chronic", []string{"long-term", "persistent", "ongoing"}},
		{"acute", []string{"short-term", "sudden onset", "immediate"}},
	}
}

// expandSynonyms appends the synonyms of every matched term to the query.
// The original wording is never replaced. Returns the query unchanged when
// nothing matched.
func expandSynonyms(query string, table []SynonymEntry) string {
	lower := strings.ToLower(query)
	seen := make(map[string]struct{})
	added := make([]string, 0, 8)
	for _, entry := range table {
		term := strings.ToLower(strings.TrimSpace(entry.Term))
		if term == "" || !strings.Contains(lower, term) {
			continue
		}
		for _, syn := range entry.Synonyms {
			key := strings.ToLower(strings.TrimSpace(syn))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			added = append(added, strings.TrimSpace(syn))
		}
	}
	if len(added) == 0 {
		return query
	}
	return query + " " + strings.Join(added, " ")
}

func synonymVariant(query string, table []SynonymEntry) (domain.QueryVariant, bool) {
	expanded := expandSynonyms(query, table)
	if expanded == query {
		return domain.QueryVariant{}, false
	}
	return domain.QueryVariant{Text: expanded, Strategy: domain.StrategySynonym, Weight: weightSynonym}, true
}
