package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
)

const (
	defaultMaxSubQueries = 4
	focusWindowWords     = 7
)

var decompositionOptions = domain.CompletionOptions{Temperature: 0.3, MaxTokens: 500, JSON: true}

var errMalformedDecomposition = errors.New("malformed decomposition output")

// QueryDecomposer splits a multi-aspect question into focused sub-queries.
type QueryDecomposer struct {
	generator     ports.TextGenerator
	useLLM        bool
	maxSubQueries int
	logger        *slog.Logger
}

type DecomposerOption func(*QueryDecomposer)

func WithMaxSubQueries(n int) DecomposerOption {
	return func(d *QueryDecomposer) {
		if n > 0 {
			d.maxSubQueries = n
		}
	}
}

func WithLLMDecomposition(enabled bool) DecomposerOption {
	return func(d *QueryDecomposer) {
		d.useLLM = enabled
	}
}

func WithDecomposerLogger(logger *slog.Logger) DecomposerOption {
	return func(d *QueryDecomposer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewQueryDecomposer(generator ports.TextGenerator, opts ...DecomposerOption) *QueryDecomposer {
	d := &QueryDecomposer{
		generator:     generator,
		useLLM:        true,
		maxSubQueries: defaultMaxSubQueries,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *QueryDecomposer) Decompose(ctx context.Context, query string) []domain.SubQuery {
	if !shouldDecompose(query) {
		intent := detectQueryIntent(query)
		return []domain.SubQuery{{
			Text:            query,
			Intent:          intent,
			Priority:        1,
			StatisticalOnly: isStatisticalQuery(query),
			SectionHint:     sectionHintForIntent(intent),
		}}
	}

	if d.useLLM && d.generator != nil {
		subQueries, err := d.decomposeWithLLM(ctx, query)
		if err == nil {
			return d.capSubQueries(subQueries)
		}
		d.logger.Warn("llm_decomposition_failed", "error", err)
	}

	return d.capSubQueries(decomposeByKeywords(query))
}

func (d *QueryDecomposer) capSubQueries(subQueries []domain.SubQuery) []domain.SubQuery {
	if len(subQueries) > d.maxSubQueries {
		return subQueries[:d.maxSubQueries]
	}
	return subQueries
}

func (d *QueryDecomposer) decomposeWithLLM(ctx context.Context, query string) ([]domain.SubQuery, error) {
	raw, err := d.generator.Complete(ctx, buildDecompositionPrompt(query, d.maxSubQueries), decompositionOptions)
	if err != nil {
		return nil, err
	}

	items, err := parseDecomposition(raw)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SubQuery, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		out = append(out, newSubQuery(text, domain.ParseIntent(strings.ToLower(strings.TrimSpace(item.Intent))), len(out)))
	}
	if len(out) == 0 {
		return nil, errMalformedDecomposition
	}
	return out, nil
}

type decompositionItem struct {
	Text   string `json:"text"`
	Intent string `json:"intent"`
}

// parseDecomposition accepts a bare array, an object with "subqueries", or an
// object with any other array-valued field (keys tried in sorted order).
func parseDecomposition(raw string) ([]decompositionItem, error) {
	payload := strings.TrimSpace(raw)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")
	payload = strings.TrimSpace(payload)

	if strings.HasPrefix(payload, "[") {
		var items []decompositionItem
		if err := json.Unmarshal([]byte(payload), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedDecomposition, err)
		}
		return items, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedDecomposition, err)
	}
	if list, ok := obj["subqueries"]; ok {
		var items []decompositionItem
		if err := json.Unmarshal(list, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedDecomposition, err)
		}
		return items, nil
	}
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		var items []decompositionItem
		if err := json.Unmarshal(obj[key], &items); err == nil && len(items) > 0 {
			return items, nil
		}
	}
	return nil, errMalformedDecomposition
}

func decomposeByKeywords(query string) []domain.SubQuery {
	intents := detectIntentFamilies(query)
	out := make([]domain.SubQuery, 0, len(intents))
	for _, intent := range intents {
		out = append(out, newSubQuery(focusQuery(query, intent), intent, len(out)))
	}
	if len(out) == 0 {
		intent := detectQueryIntent(query)
		out = append(out, newSubQuery(query, intent, 0))
	}
	return out
}

func newSubQuery(text string, intent domain.Intent, position int) domain.SubQuery {
	return domain.SubQuery{
		Text:            text,
		Intent:          intent,
		Priority:        priorityForPosition(position),
		StatisticalOnly: intent == domain.IntentStatistical,
		SectionHint:     sectionHintForIntent(intent),
	}
}

func priorityForPosition(position int) int {
	switch {
	case position <= 0:
		return 1
	case position == 1:
		return 2
	default:
		return 3
	}
}

var focusTemplates = map[domain.Intent]struct {
	anchors  []string
	template string
}{
	domain.IntentEffectiveness: {[]string{"effective", "efficacy"}, "Effectiveness of %s"},
	domain.IntentSafety:        {[]string{"safe", "adverse", "side"}, "Safety and adverse effects of %s"},
	domain.IntentMethodology:   {[]string{"method", "methodology", "design"}, "Methodology for %s"},
	domain.IntentStatistical:   {[]string{"statistical", "evidence"}, "Statistical evidence for %s"},
}

// focusQuery narrows the query to the words around the intent's anchor keyword.
func focusQuery(query string, intent domain.Intent) string {
	focus, ok := focusTemplates[intent]
	if !ok {
		return query
	}
	if span, found := extractAroundKeyword(query, focus.anchors, focusWindowWords); found {
		return span
	}
	return fmt.Sprintf(focus.template, query)
}

func extractAroundKeyword(query string, keywords []string, window int) (string, bool) {
	words := strings.Fields(query)
	for i, word := range words {
		lower := strings.ToLower(word)
		for _, kw := range keywords {
			if !strings.Contains(lower, kw) {
				continue
			}
			start := i - window
			if start < 0 {
				start = 0
			}
			end := i + window + 1
			if end > len(words) {
				end = len(words)
			}
			return strings.Join(words[start:end], " "), true
		}
	}
	return "", false
}
