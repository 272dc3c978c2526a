// Package mcpadapter exposes evidence search as an MCP tool.
package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
)

const (
	serverName     = "medical-evidence"
	serverVersion  = "1.0.0"
	searchToolName = "search_evidence"
)

type Server struct {
	retriever ports.EvidenceRetriever
	logger    *slog.Logger
	mcp       *server.MCPServer
}

func NewServer(retriever ports.EvidenceRetriever, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		retriever: retriever,
		logger:    logger,
		mcp:       server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false), server.WithRecovery()),
	}
	s.mcp.AddTool(searchTool(), s.handleSearch)
	return s
}

// ServeStdio blocks serving the tool over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func searchTool() mcp.Tool {
	return mcp.NewTool(searchToolName,
		mcp.WithDescription("Search systematic-review evidence. Returns ranked passages with section context, quality grade and source."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Clinical question in natural language")),
		mcp.WithNumber("top_k", mcp.Description("Number of passages to return (1-50)"), mcp.Min(1), mcp.Max(50)),
		mcp.WithString("strategy", mcp.Description("Query expansion strategy"), mcp.Enum(string(domain.StrategyRewrite), string(domain.StrategyDecompose))),
		mcp.WithString("level", mcp.Description("Restrict to one chunk level"), mcp.Enum(
			string(domain.LevelDocument), string(domain.LevelSection), string(domain.LevelSubsection), string(domain.LevelParagraph),
		)),
		mcp.WithString("section", mcp.Description("Restrict to a section name")),
		mcp.WithBoolean("statistical_only", mcp.Description("Only passages with statistical content")),
		mcp.WithString("topic", mcp.Description("Restrict to a review topic")),
		mcp.WithString("quality_grade", mcp.Description("Restrict to a GRADE quality level (A-D)")),
	)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	level, _ := domain.ParseChunkLevel(request.GetString("level", ""))
	req := domain.RetrievalRequest{
		Query:    query,
		TopK:     request.GetInt("top_k", 0),
		Strategy: domain.Strategy(request.GetString("strategy", "")),
		Filters: domain.RetrievalFilters{
			Level:           level,
			Section:         request.GetString("section", ""),
			StatisticalOnly: request.GetBool("statistical_only", false),
			Topic:           request.GetString("topic", ""),
			QualityGrade:    request.GetString("quality_grade", ""),
		},
	}

	result, err := s.retriever.Retrieve(ctx, req)
	if err == nil {
		err = result.OutageError("mcp search evidence")
	}
	if err != nil {
		s.logger.Warn("mcp_search_failed", "error", err)
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if domain.IsKind(err, domain.ErrTemporary) {
			return mcp.NewToolResultError("search services are temporarily unavailable, retry later"), nil
		}
		return mcp.NewToolResultError("evidence search failed"), nil
	}
	return mcp.NewToolResultText(formatResult(result)), nil
}

func formatResult(result *domain.RetrievalResult) string {
	if result.NoEvidence || len(result.Results) == 0 {
		return fmt.Sprintf("No evidence found for %q.", result.Query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d passages for %q (strategy %s", len(result.Results), result.Query, result.Strategy)
	if result.FailedBranches > 0 {
		fmt.Fprintf(&b, ", %d of %d searches failed", result.FailedBranches, result.Branches)
	}
	b.WriteString(")\n")
	for i, r := range result.Results {
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%d] %s", i+1, titleOrID(r))
		if r.Metadata.QualityGrade != "" {
			fmt.Fprintf(&b, " | grade %s", r.Metadata.QualityGrade)
		}
		if r.SectionName != "" {
			fmt.Fprintf(&b, " | %s", r.SectionName)
		}
		fmt.Fprintf(&b, " | relevance %.2f\n", r.Relevance)
		if r.Metadata.URL != "" {
			fmt.Fprintf(&b, "%s\n", r.Metadata.URL)
		}
		b.WriteString(r.EnrichedContent)
		b.WriteString("\n")
	}
	return b.String()
}

func titleOrID(r domain.EnrichedResult) string {
	if r.Metadata.Title != "" {
		return r.Metadata.Title
	}
	return r.DocumentID
}
