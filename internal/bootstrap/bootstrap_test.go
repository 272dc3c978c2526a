package bootstrap

import (
	"context"
	"testing"

	"github.com/kirillkom/medical-evidence-rag/internal/config"
	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/llm/openai"
)

func testConfig() config.Config {
	return config.Config{
		LLMProvider:      "ollama",
		OllamaURL:        "http://127.0.0.1:1",
		OllamaGenModel:   "llama3.1:8b",
		OllamaEmbedModel: "nomic-embed-text",
		QdrantURL:        "http://127.0.0.1:1",
		QdrantCollection: "medical_chunks",
		RAGStrategy:      "rewrite",
		RAGTopK:          10,
		RAGParallelism:   4,
		RAGKPerBranch:    10,
		EnrichPoolSize:   4,
	}
}

func TestNewWiresPipelineWithoutPostgres(t *testing.T) {
	app, err := New(context.Background(), testConfig(), Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Retriever == nil || app.Index == nil || app.Executor == nil {
		t.Fatalf("expected retriever, index and executor to be wired")
	}
	if app.Metadata != nil {
		t.Fatalf("expected metadata repository to be disabled without a DSN")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RAGStrategy = "hybrid"

	_, err := New(context.Background(), cfg, Options{})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewLanguageModelsSelectsProvider(t *testing.T) {
	cfg := testConfig()
	embedder, generator, err := newLanguageModels(cfg, nil)
	if err != nil {
		t.Fatalf("ollama provider error = %v", err)
	}
	if _, ok := embedder.(*ollama.Embedder); !ok {
		t.Fatalf("expected ollama embedder, got %T", embedder)
	}
	if _, ok := generator.(*ollama.Generator); !ok {
		t.Fatalf("expected ollama generator, got %T", generator)
	}

	cfg.LLMProvider = "openai"
	cfg.OpenAIBaseURL = "http://127.0.0.1:1/v1"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIChatModel = "gpt-4o-mini"
	cfg.OpenAIEmbedModel = "text-embedding-3-small"
	embedder, _, err = newLanguageModels(cfg, nil)
	if err != nil {
		t.Fatalf("openai provider error = %v", err)
	}
	if _, ok := embedder.(*openai.Embedder); !ok {
		t.Fatalf("expected openai embedder, got %T", embedder)
	}

	cfg.LLMProvider = "gemini"
	if _, _, err := newLanguageModels(cfg, nil); !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown provider, got %v", err)
	}
}
