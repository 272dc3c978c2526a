package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medical-evidence-rag/internal/bootstrap"
	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/queue/nats"
)

type searchOptions struct {
	topK            int
	strategy        string
	level           string
	section         string
	statisticalOnly bool
	topic           string
	grade           string
	format          string
	remote          bool
	maxChars        int
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run the retrieval pipeline for a clinical question",
		Long: `Run query expansion, fan-out search, fusion, reranking and context
enrichment for a clinical question and print the ranked passages.

Examples:
  evidencectl search "statins for stroke prevention"
  evidencectl search "acupuncture for chronic pain" --strategy decompose --top-k 5
  evidencectl search "mortality in sepsis" --statistical-only --format json
  evidencectl search "yoga for anxiety" --remote`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(strings.Join(args, " "))
			if err != nil {
				return err
			}
			retriever, closeFn, err := opts.retriever(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			return runSearch(cmd.Context(), cmd.OutOrStdout(), retriever, req, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of passages to return (default from RAG_TOP_K)")
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "Query strategy: rewrite or decompose (default from RAG_STRATEGY)")
	cmd.Flags().StringVar(&opts.level, "level", "", "Restrict to a chunk level: DOCUMENT, SECTION, SUBSECTION, PARAGRAPH")
	cmd.Flags().StringVar(&opts.section, "section", "", "Restrict to a section name")
	cmd.Flags().BoolVar(&opts.statisticalOnly, "statistical-only", false, "Only passages with statistical content")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "Restrict to a review topic")
	cmd.Flags().StringVar(&opts.grade, "grade", "", "Restrict to a quality grade (A-D)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "Send the request to a worker over NATS instead of running locally")
	cmd.Flags().IntVar(&opts.maxChars, "max-chars", 600, "Truncate passage text in text output (0 = no limit)")

	return cmd
}

func (o searchOptions) request(query string) (domain.RetrievalRequest, error) {
	req := domain.RetrievalRequest{
		Query:    query,
		TopK:     o.topK,
		Strategy: domain.Strategy(o.strategy),
		Filters: domain.RetrievalFilters{
			Section:         o.section,
			StatisticalOnly: o.statisticalOnly,
			Topic:           o.topic,
			QualityGrade:    o.grade,
		},
	}
	if o.level != "" {
		level, ok := domain.ParseChunkLevel(o.level)
		if !ok {
			return req, fmt.Errorf("unknown level %q", o.level)
		}
		req.Filters.Level = level
	}
	if o.format != "text" && o.format != "json" {
		return req, fmt.Errorf("unknown format %q", o.format)
	}
	return req, nil
}

func (o searchOptions) retriever(ctx context.Context) (ports.EvidenceRetriever, func(), error) {
	cfg := loadConfig()
	if o.remote {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			RequestTimeout: cfg.NATSRequestTimeout,
			Logger:         slog.Default(),
		})
		if err != nil {
			return nil, nil, err
		}
		return remoteRetriever{queue: queue}, queue.Close, nil
	}
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: slog.Default()})
	if err != nil {
		return nil, nil, err
	}
	return app.Retriever, app.Close, nil
}

type remoteRetriever struct {
	queue *nats.Queue
}

func (r remoteRetriever) Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	return r.queue.Search(ctx, req)
}

func runSearch(ctx context.Context, out io.Writer, retriever ports.EvidenceRetriever, req domain.RetrievalRequest, opts searchOptions) error {
	result, err := retriever.Retrieve(ctx, req)
	if err == nil {
		err = result.OutageError("search")
	}
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	writeTextResult(out, result, opts.maxChars)
	return nil
}

func writeTextResult(out io.Writer, result *domain.RetrievalResult, maxChars int) {
	if result.NoEvidence || len(result.Results) == 0 {
		fmt.Fprintf(out, "No evidence found for %q.\n", result.Query)
		return
	}

	fmt.Fprintf(out, "%d results for %q (strategy %s, %d/%d searches ok)\n",
		len(result.Results), result.Query, result.Strategy, result.Branches-result.FailedBranches, result.Branches)
	for _, sq := range result.SubQueries {
		fmt.Fprintf(out, "  sub-query [%s p%d] %s\n", sq.Intent, sq.Priority, sq.Text)
	}
	for i, r := range result.Results {
		title := r.Metadata.Title
		if title == "" {
			title = r.DocumentID
		}
		fmt.Fprintf(out, "\n%2d. %s\n", i+1, title)
		fmt.Fprintf(out, "    level=%s section=%s grade=%s relevance=%.3f rerank=%.3f\n",
			r.Level, dash(r.SectionName), dash(r.Metadata.QualityGrade), r.Relevance, r.RerankScore)
		if r.Metadata.URL != "" {
			fmt.Fprintf(out, "    %s\n", r.Metadata.URL)
		}
		fmt.Fprintf(out, "    %s\n", indent(clip(r.EnrichedContent, maxChars)))
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func clip(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}
