package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/medical-evidence-rag/internal/adapters/http"
	"github.com/kirillkom/medical-evidence-rag/internal/bootstrap"
	"github.com/kirillkom/medical-evidence-rag/internal/config"
	"github.com/kirillkom/medical-evidence-rag/internal/observability/logging"
	"github.com/kirillkom/medical-evidence-rag/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api_exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:          logger,
		Observer:        httpMetrics.Retrieval(),
		BreakerListener: httpMetrics.Retrieval().ObserveBreakerState,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	opts := []httpadapter.RouterOption{
		httpadapter.WithMetrics(httpMetrics),
		httpadapter.WithLogger(logger),
		httpadapter.WithHealthCheck("qdrant", app.Index),
	}
	if app.Metadata != nil {
		opts = append(opts, httpadapter.WithHealthCheck("postgres", app.Metadata))
	}
	router, err := httpadapter.NewRouter(cfg, app.Retriever, opts...)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", "error", err)
	}
	return nil
}
