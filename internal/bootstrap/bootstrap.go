package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/medical-evidence-rag/internal/config"
	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
	"github.com/kirillkom/medical-evidence-rag/internal/core/usecase"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/llm/openai"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/rerank/huggingface"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/vector/qdrant"
)

type Options struct {
	Logger *slog.Logger
	// Observer receives pipeline timings; nil disables them.
	Observer ports.RetrievalObserver
	// BreakerListener is told about circuit breaker transitions.
	BreakerListener resilience.StateListener
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Retriever *usecase.RetrievalUseCase
	Index     *qdrant.Client
	// Metadata is nil when POSTGRES_DSN is empty.
	Metadata *postgres.DocumentMetadataRepository
	Executor *resilience.Executor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	executor := NewExecutor(cfg, logger, opts.BreakerListener)

	embedder, generator, err := newLanguageModels(cfg, executor)
	if err != nil {
		return nil, err
	}

	index := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		DenseVector:  cfg.QdrantDenseVector,
		SparseVector: cfg.QdrantSparseVector,
		Hybrid:       cfg.QdrantHybrid,
		Timeout:      cfg.QdrantTimeout,
		Executor:     executor,
	})

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pc := usecase.PipelineContext{
		Embedder:  embedder,
		Index:     index,
		Generator: generator,
		Observer:  opts.Observer,
		Logger:    logger,
	}

	var metadata *postgres.DocumentMetadataRepository
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		repo, db, err := OpenMetadataRepository(ctx, cfg, executor)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		metadata = repo
		pc.Metadata = repo
	} else {
		logger.Warn("document_metadata_disabled", "reason", "POSTGRES_DSN is empty")
	}

	var crossEncoder *usecase.CrossEncoderStage
	if cfg.CrossEncoderEnabled {
		encoder := huggingface.New(cfg.CrossEncoderURL, cfg.CrossEncoderModel, cfg.CrossEncoderToken, cfg.CrossEncoderTimeout, executor)
		pc.CrossEncoder = encoder
		crossEncoder = usecase.NewCrossEncoderStage(encoder, usecase.CrossEncoderOptions{
			TopN:    cfg.CrossEncoderTopN,
			TopM:    cfg.CrossEncoderTopM,
			Timeout: cfg.CrossEncoderTimeout,
		}, logger)
	}

	synonyms, err := config.LoadSynonyms(cfg.RAGSynonymsPath)
	if err != nil {
		closeAll()
		return nil, err
	}

	pool, err := ants.NewPool(cfg.EnrichPoolSize)
	if err != nil {
		closeAll()
		return nil, domain.WrapError(domain.ErrConfiguration, "init enrichment pool", err)
	}
	closers = append(closers, pool.Release)

	rewriter := usecase.NewQueryRewriter(generator,
		usecase.WithSynonymTable(synonyms),
		usecase.WithLLMVariants(cfg.RAGLLMVariants),
		usecase.WithHyDE(cfg.RAGHyDEEnabled),
		usecase.WithRewriterLogger(logger),
	)
	decomposer := usecase.NewQueryDecomposer(generator,
		usecase.WithMaxSubQueries(cfg.RAGMaxSubQueries),
		usecase.WithLLMDecomposition(cfg.RAGLLMDecomposition),
		usecase.WithDecomposerLogger(logger),
	)
	reranker := usecase.NewReranker(usecase.RerankWeights{
		Quality:     cfg.RerankWeightQuality,
		Statistical: cfg.RerankWeightStatistical,
		Section:     cfg.RerankWeightSection,
		Semantic:    cfg.RerankWeightSemantic,
	})
	enricher := usecase.NewContextEnricher(index, pool, cfg.EnrichFetchTimeout, logger)

	retriever, err := usecase.NewRetrievalUseCase(pc, rewriter, decomposer, reranker, crossEncoder, enricher, usecase.RetrievalConfig{
		Strategy:    domain.Strategy(cfg.RAGStrategy),
		TopK:        cfg.RAGTopK,
		FusionLimit: cfg.RAGFusionLimit,
		RRFK:        cfg.RAGFusionRRFK,
		Fanout: usecase.FanoutOptions{
			KPerBranch:      cfg.RAGKPerBranch,
			Parallelism:     cfg.RAGParallelism,
			BranchTimeout:   cfg.RAGBranchTimeout,
			MetadataTimeout: cfg.RAGMetadataTimeout,
		},
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	logger.Info("retrieval_pipeline_ready",
		"strategy", cfg.RAGStrategy,
		"llm_provider", cfg.LLMProvider,
		"qdrant_hybrid", cfg.QdrantHybrid,
		"cross_encoder", cfg.CrossEncoderEnabled,
		"document_metadata", metadata != nil,
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Retriever: retriever,
		Index:     index,
		Metadata:  metadata,
		Executor:  executor,
		closeFn:   closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// NewExecutor builds the shared resilience executor for upstream calls.
func NewExecutor(cfg config.Config, logger *slog.Logger, listener resilience.StateListener) *resilience.Executor {
	rcfg := resilience.DefaultConfig()
	if cfg.ResilienceRetryMaxAttempts > 0 {
		rcfg.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	}
	if cfg.ResilienceBreakerTimeout > 0 {
		rcfg.BreakerOpenTimeout = cfg.ResilienceBreakerTimeout
	}
	opts := []resilience.Option{resilience.WithLogger(logger)}
	if listener != nil {
		opts = append(opts, resilience.WithStateListener(listener))
	}
	return resilience.NewExecutor(rcfg, opts...)
}

// OpenMetadataRepository connects to Postgres and ensures the metadata schema.
func OpenMetadataRepository(ctx context.Context, cfg config.Config, executor *resilience.Executor) (*postgres.DocumentMetadataRepository, *sql.DB, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentMetadataRepository(db, executor)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, db, nil
}

func newLanguageModels(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.TextGenerator, error) {
	switch cfg.LLMProvider {
	case "openai":
		ocfg := openai.Config{
			BaseURL:        cfg.OpenAIBaseURL,
			APIKey:         cfg.OpenAIAPIKey,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbedModel,
		}
		embedder, err := openai.NewEmbedder(ocfg, executor)
		if err != nil {
			return nil, nil, domain.WrapError(domain.ErrConfiguration, "init openai embedder", err)
		}
		generator, err := openai.NewGenerator(ocfg, executor)
		if err != nil {
			return nil, nil, domain.WrapError(domain.ErrConfiguration, "init openai generator", err)
		}
		return embedder, generator, nil
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
		return ollama.NewEmbedder(client), ollama.NewGenerator(client), nil
	default:
		return nil, nil, domain.WrapError(domain.ErrConfiguration, "init language models", fmt.Errorf("unknown provider %q", cfg.LLMProvider))
	}
}
