// Package openai talks to OpenAI-compatible chat and embedding endpoints
// (vLLM, LM Studio, llama.cpp server, hosted OpenAI) through langchaingo.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
}

func (c Config) token() string {
	// Local OpenAI-compatible servers accept any token.
	if strings.TrimSpace(c.APIKey) == "" {
		return "none"
	}
	return c.APIKey
}

type Embedder struct {
	embedder embeddings.Embedder
	executor *resilience.Executor
	logger   *slog.Logger
}

func NewEmbedder(cfg Config, executor *resilience.Executor) (*Embedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.token()),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "create openai embedder", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "create openai embedder", err)
	}
	return &Embedder{
		embedder: embedder,
		executor: executor,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := resilience.Call(ctx, e.executor, "openai.embed", func(ctx context.Context) ([]float32, error) {
		return e.embedder.EmbedQuery(ctx, text)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		e.logger.Debug("embedding_failed", "length", len(text), "error", err)
		return nil, resilience.MarkTemporary("openai embed", err, resilience.ClassifyHTTPError)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vector, nil
}

type Generator struct {
	client   llms.Model
	executor *resilience.Executor
}

func NewGenerator(cfg Config, executor *resilience.Executor) (*Generator, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.token()),
		openai.WithModel(cfg.ChatModel),
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "create openai generator", err)
	}
	return &Generator{client: client, executor: executor}, nil
}

func (g *Generator) Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.JSON {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	response, err := resilience.Call(ctx, g.executor, "openai.generate", func(ctx context.Context) (*llms.ContentResponse, error) {
		return g.client.GenerateContent(ctx, content, callOpts...)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.MarkTemporary("openai generate", err, resilience.ClassifyHTTPError)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openai generate returned no choices")
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}
