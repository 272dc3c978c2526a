package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/usecase"
)

type synonymFile struct {
	Synonyms []usecase.SynonymEntry `yaml:"synonyms"`
}

// LoadSynonyms reads a replacement synonym table. An empty path yields the
// built-in table.
func LoadSynonyms(path string) ([]usecase.SynonymEntry, error) {
	if strings.TrimSpace(path) == "" {
		return usecase.DefaultSynonymTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "load synonyms", err)
	}
	return parseSynonyms(raw)
}

func parseSynonyms(raw []byte) ([]usecase.SynonymEntry, error) {
	var file synonymFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "parse synonyms", err)
	}
	table := make([]usecase.SynonymEntry, 0, len(file.Synonyms))
	for i, entry := range file.Synonyms {
		term := strings.TrimSpace(entry.Term)
		if term == "" {
			return nil, domain.WrapError(domain.ErrConfiguration, "parse synonyms", fmt.Errorf("entry %d has no term", i))
		}
		var synonyms []string
		for _, s := range entry.Synonyms {
			if s = strings.TrimSpace(s); s != "" {
				synonyms = append(synonyms, s)
			}
		}
		if len(synonyms) == 0 {
			continue
		}
		table = append(table, usecase.SynonymEntry{Term: term, Synonyms: synonyms})
	}
	return table, nil
}
