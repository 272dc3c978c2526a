// Package cmd provides the evidencectl commands.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/medical-evidence-rag/internal/config"
	"github.com/kirillkom/medical-evidence-rag/internal/observability/logging"
)

type globalOptions struct {
	envFile  string
	logLevel string
}

func NewRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:           "evidencectl",
		Short:         "Query and maintain the medical evidence index",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.envFile != "" {
				if err := godotenv.Load(opts.envFile); err != nil {
					return err
				}
			} else {
				_ = godotenv.Load()
			}
			level := opts.logLevel
			if level == "" {
				level = os.Getenv("LOG_LEVEL")
			}
			slog.SetDefault(logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "evidencectl", level))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load environment from this file instead of ./.env")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); logs go to stderr")

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newMetadataCmd())
	cmd.AddCommand(newHealthCmd())
	return cmd
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig reads the environment after PersistentPreRunE applied .env.
func loadConfig() config.Config {
	return config.Load()
}
