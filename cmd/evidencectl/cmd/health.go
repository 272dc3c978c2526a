package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medical-evidence-rag/internal/bootstrap"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/vector/qdrant"
)

type readinessCheck struct {
	name  string
	ready func(ctx context.Context) error
}

func newHealthCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that Qdrant and Postgres are reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cfg := loadConfig()
			index := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{Timeout: timeout})
			checks := []readinessCheck{{name: "qdrant", ready: index.Ready}}
			if strings.TrimSpace(cfg.PostgresDSN) != "" {
				checks = append(checks, readinessCheck{name: "postgres", ready: func(ctx context.Context) error {
					repo, db, err := bootstrap.OpenMetadataRepository(ctx, cfg, nil)
					if err != nil {
						return err
					}
					defer db.Close()
					return repo.Ready(ctx)
				}})
			}
			return runHealth(ctx, cmd.OutOrStdout(), checks)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Overall timeout for the checks")
	return cmd
}

func runHealth(ctx context.Context, out io.Writer, checks []readinessCheck) error {
	failed := 0
	for _, check := range checks {
		if err := check.ready(ctx); err != nil {
			failed++
			slog.Warn("health_check_failed", "dependency", check.name, "error", err)
			fmt.Fprintf(out, "%-10s FAIL %v\n", check.name, err)
			continue
		}
		fmt.Fprintf(out, "%-10s ok\n", check.name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d dependencies unavailable", failed, len(checks))
	}
	return nil
}
