package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/medical-evidence-rag/internal/adapters/mcp"
	"github.com/kirillkom/medical-evidence-rag/internal/bootstrap"
	"github.com/kirillkom/medical-evidence-rag/internal/config"
	"github.com/kirillkom/medical-evidence-rag/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	// stdout carries the MCP protocol.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		logger.Error("mcp_bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := mcpadapter.NewServer(app.Retriever, logger).ServeStdio(); err != nil {
		logger.Error("mcp_server_exit", "error", err)
		app.Close()
		os.Exit(1)
	}
}
