package mcpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

type retrieverFake struct {
	result *domain.RetrievalResult
	err    error
	got    domain.RetrievalRequest
}

func (f *retrieverFake) Retrieve(_ context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	f.got = req
	return f.result, f.err
}

func callSearch(t *testing.T, fake *retrieverFake, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	s := NewServer(fake, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := mcp.CallToolRequest{}
	req.Params.Name = searchToolName
	req.Params.Arguments = args
	result, err := s.handleSearch(context.Background(), req)
	if err != nil {
		t.Fatalf("handleSearch() error = %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("expected tool result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestSearchToolFormatsResults(t *testing.T) {
	enriched := domain.EnrichedResult{EnrichedContent: "## Results\n\nStatins reduced stroke risk.", Relevance: 0.82}
	enriched.DocumentID = "CD000001"
	enriched.SectionName = "results"
	enriched.Metadata = domain.DocumentMetadata{Title: "Statins for stroke prevention", QualityGrade: "A", URL: "https://example.org/cd000001"}
	fake := &retrieverFake{result: &domain.RetrievalResult{
		Query:    "statins stroke",
		Strategy: domain.StrategyDecompose,
		Results:  []domain.EnrichedResult{enriched},
		Branches: 2,
	}}

	result := callSearch(t, fake, map[string]any{
		"query":            "statins stroke",
		"top_k":            float64(3),
		"strategy":         "decompose",
		"level":            "paragraph",
		"statistical_only": true,
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if fake.got.TopK != 3 || fake.got.Strategy != domain.StrategyDecompose {
		t.Fatalf("unexpected request: %+v", fake.got)
	}
	if fake.got.Filters.Level != domain.LevelParagraph || !fake.got.Filters.StatisticalOnly {
		t.Fatalf("unexpected filters: %+v", fake.got.Filters)
	}

	text := resultText(t, result)
	for _, want := range []string{"[1] Statins for stroke prevention", "grade A", "relevance 0.82", "Statins reduced stroke risk."} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	fake := &retrieverFake{}
	result := callSearch(t, fake, map[string]any{"top_k": float64(3)})
	if !result.IsError {
		t.Fatalf("expected tool error for missing query")
	}
}

func TestSearchToolReportsNoEvidence(t *testing.T) {
	fake := &retrieverFake{result: &domain.RetrievalResult{Query: "q", Results: []domain.EnrichedResult{}, Branches: 1, NoEvidence: true}}
	text := resultText(t, callSearch(t, fake, map[string]any{"query": "q"}))
	if !strings.Contains(text, "No evidence found") {
		t.Fatalf("unexpected output: %s", text)
	}
}

func TestSearchToolOutageIsToolError(t *testing.T) {
	fake := &retrieverFake{result: &domain.RetrievalResult{Query: "q", Branches: 2, FailedBranches: 2, NoEvidence: true}}
	result := callSearch(t, fake, map[string]any{"query": "q"})
	if !result.IsError || !strings.Contains(resultText(t, result), "temporarily unavailable") {
		t.Fatalf("expected temporary outage tool error")
	}

	fake = &retrieverFake{err: errors.New("boom")}
	result = callSearch(t, fake, map[string]any{"query": "q"})
	if !result.IsError || strings.Contains(resultText(t, result), "boom") {
		t.Fatalf("expected generic tool error without internals")
	}
}
