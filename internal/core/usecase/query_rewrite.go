package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
)

const (
	weightOriginal         = 1.0
	weightSynonym          = 0.8
	weightLLMReformulation = 0.9
	weightHyDE             = 0.9

	defaultLLMVariants = 2
)

var (
	reformulationOptions = domain.CompletionOptions{Temperature: 0.7, MaxTokens: 200}
	hydeOptions          = domain.CompletionOptions{Temperature: 0.7, MaxTokens: 200}
)

// QueryRewriter expands one question into weighted search variants.
type QueryRewriter struct {
	generator   ports.TextGenerator
	synonyms    []SynonymEntry
	llmVariants int
	hyde        bool
	logger      *slog.Logger
}

type RewriterOption func(*QueryRewriter)

func WithSynonymTable(table []SynonymEntry) RewriterOption {
	return func(r *QueryRewriter) {
		if len(table) > 0 {
			r.synonyms = table
		}
	}
}

// WithLLMVariants sets how many reformulations are requested; 0 disables the step.
func WithLLMVariants(n int) RewriterOption {
	return func(r *QueryRewriter) {
		if n >= 0 {
			r.llmVariants = n
		}
	}
}

func WithHyDE(enabled bool) RewriterOption {
	return func(r *QueryRewriter) {
		r.hyde = enabled
	}
}

func WithRewriterLogger(logger *slog.Logger) RewriterOption {
	return func(r *QueryRewriter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewQueryRewriter(generator ports.TextGenerator, opts ...RewriterOption) *QueryRewriter {
	r := &QueryRewriter{
		generator:   generator,
		synonyms:    DefaultSynonymTable(),
		llmVariants: defaultLLMVariants,
		hyde:        true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RewriteQuery always returns the original query first. Generation failures
// only remove the variants of the failing step.
func (r *QueryRewriter) RewriteQuery(ctx context.Context, query string) []domain.QueryVariant {
	variants := []domain.QueryVariant{{Text: query, Strategy: domain.StrategyOriginal, Weight: weightOriginal}}

	if v, ok := synonymVariant(query, r.synonyms); ok {
		variants = append(variants, v)
	}

	if r.generator == nil {
		return variants
	}

	if r.llmVariants > 0 {
		variants = append(variants, r.reformulate(ctx, query)...)
	}

	if r.hyde {
		if hypothetical := r.hypotheticalAnswer(ctx, query); hypothetical != query {
			variants = append(variants, domain.QueryVariant{
				Text:     hypothetical,
				Strategy: domain.StrategyHyDE,
				Weight:   weightHyDE,
			})
		}
	}

	return variants
}

func (r *QueryRewriter) reformulate(ctx context.Context, query string) []domain.QueryVariant {
	raw, err := r.generator.Complete(ctx, buildReformulationPrompt(query, r.llmVariants), reformulationOptions)
	if err != nil {
		r.logger.Warn("query_reformulation_failed", "error", err)
		return nil
	}

	lines := parseReformulations(raw, query)
	if len(lines) > r.llmVariants {
		lines = lines[:r.llmVariants]
	}

	out := make([]domain.QueryVariant, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.QueryVariant{
			Text:     line,
			Strategy: domain.StrategyLLMReformulation,
			Weight:   weightLLMReformulation,
		})
	}
	return out
}

// hypotheticalAnswer falls back to the query itself when generation fails.
func (r *QueryRewriter) hypotheticalAnswer(ctx context.Context, query string) string {
	raw, err := r.generator.Complete(ctx, buildHypotheticalAnswerPrompt(query), hydeOptions)
	if err != nil {
		r.logger.Warn("hyde_generation_failed", "error", err)
		return query
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return query
	}
	return text
}

func parseReformulations(raw, query string) []string {
	seen := map[string]struct{}{strings.ToLower(strings.TrimSpace(query)): {}}
	out := make([]string, 0, 4)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "0123456789.-)* "))
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, line)
	}
	return out
}
