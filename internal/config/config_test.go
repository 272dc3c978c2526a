package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	for _, key := range []string{"RAG_STRATEGY", "RAG_TOP_K", "RAG_FUSION_RRF_K", "RAG_BRANCH_TIMEOUT", "RAG_METADATA_TIMEOUT", "CROSS_ENCODER_TOP_N", "LLM_PROVIDER"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RAGStrategy != "rewrite" {
		t.Fatalf("expected default strategy rewrite, got %q", cfg.RAGStrategy)
	}
	if cfg.RAGTopK != 10 {
		t.Fatalf("expected default top k 10, got %d", cfg.RAGTopK)
	}
	if cfg.RAGFusionRRFK != 60 {
		t.Fatalf("expected default fusion rrf k 60, got %d", cfg.RAGFusionRRFK)
	}
	if cfg.RAGBranchTimeout != 8*time.Second {
		t.Fatalf("expected default branch timeout 8s, got %s", cfg.RAGBranchTimeout)
	}
	if cfg.RAGMetadataTimeout != 3*time.Second {
		t.Fatalf("expected default metadata timeout 3s, got %s", cfg.RAGMetadataTimeout)
	}
	if cfg.CrossEncoderTopN != 20 {
		t.Fatalf("expected default cross-encoder top n 20, got %d", cfg.CrossEncoderTopN)
	}
	if cfg.LLMProvider != "ollama" {
		t.Fatalf("expected default provider ollama, got %q", cfg.LLMProvider)
	}
}

func TestLoadKeepsExplicitlyEmptyPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	cfg := Load()
	if cfg.PostgresDSN != "" {
		t.Fatalf("expected empty dsn to disable metadata, got %q", cfg.PostgresDSN)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("RAG_STRATEGY", "decompose")
	t.Setenv("RAG_TOP_K", "5")
	t.Setenv("RAG_FUSION_RRF_K", "75")
	t.Setenv("RAG_BRANCH_TIMEOUT", "750ms")
	t.Setenv("CROSS_ENCODER_TIMEOUT", "15")
	t.Setenv("RERANK_WEIGHT_QUALITY", "0.5")
	t.Setenv("QDRANT_HYBRID", "true")

	cfg := Load()
	if cfg.RAGStrategy != "decompose" {
		t.Fatalf("expected strategy override, got %q", cfg.RAGStrategy)
	}
	if cfg.RAGTopK != 5 || cfg.RAGFusionRRFK != 75 {
		t.Fatalf("unexpected ints: top_k=%d rrf_k=%d", cfg.RAGTopK, cfg.RAGFusionRRFK)
	}
	if cfg.RAGBranchTimeout != 750*time.Millisecond {
		t.Fatalf("expected 750ms branch timeout, got %s", cfg.RAGBranchTimeout)
	}
	if cfg.CrossEncoderTimeout != 15*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.CrossEncoderTimeout)
	}
	if cfg.RerankWeightQuality != 0.5 {
		t.Fatalf("expected quality weight 0.5, got %v", cfg.RerankWeightQuality)
	}
	if !cfg.QdrantHybrid {
		t.Fatalf("expected hybrid search enabled")
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("RAG_TOP_K", "many")
	t.Setenv("RAG_BRANCH_TIMEOUT", "soon")

	cfg := Load()
	if cfg.RAGTopK != 10 {
		t.Fatalf("expected fallback top k, got %d", cfg.RAGTopK)
	}
	if cfg.RAGBranchTimeout != 8*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.RAGBranchTimeout)
	}
}

func validConfig() Config {
	return Config{
		LLMProvider:      "ollama",
		OllamaURL:        "http://localhost:11434",
		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "medical_chunks",
		RAGStrategy:      "rewrite",
		RAGTopK:          10,
		RAGParallelism:   4,
		RAGKPerBranch:    10,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejectsInvalidSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "strategy", mutate: func(c *Config) { c.RAGStrategy = "hybrid" }, want: "RAG_STRATEGY"},
		{name: "provider", mutate: func(c *Config) { c.LLMProvider = "gemini" }, want: "LLM_PROVIDER"},
		{name: "openai key", mutate: func(c *Config) { c.LLMProvider = "openai" }, want: "OPENAI_API_KEY"},
		{name: "collection", mutate: func(c *Config) { c.QdrantCollection = "" }, want: "QDRANT_COLLECTION"},
		{name: "cross-encoder token", mutate: func(c *Config) { c.CrossEncoderEnabled = true }, want: "HUGGINGFACE_API_KEY"},
		{name: "parallelism", mutate: func(c *Config) { c.RAGParallelism = 0 }, want: "RAG_PARALLELISM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !domain.IsKind(err, domain.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %s, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadSynonymsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	content := `synonyms:
  - term: migraine
    synonyms: [" cephalalgia ", "hemicrania"]
  - term: empty
    synonyms: []
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write synonyms: %v", err)
	}

	table, err := LoadSynonyms(path)
	if err != nil {
		t.Fatalf("LoadSynonyms() error = %v", err)
	}
	if len(table) != 1 || table[0].Term != "migraine" {
		t.Fatalf("unexpected table: %+v", table)
	}
	if table[0].Synonyms[0] != "cephalalgia" {
		t.Fatalf("expected trimmed synonym, got %q", table[0].Synonyms[0])
	}
}

func TestLoadSynonymsDefaultsAndErrors(t *testing.T) {
	table, err := LoadSynonyms("")
	if err != nil || len(table) == 0 {
		t.Fatalf("expected built-in table, got %d entries, err=%v", len(table), err)
	}
	if _, err := LoadSynonyms(filepath.Join(t.TempDir(), "missing.yaml")); !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing file, got %v", err)
	}
	if _, err := parseSynonyms([]byte("synonyms:\n  - synonyms: [a]\n")); !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error for entry without term, got %v", err)
	}
}
