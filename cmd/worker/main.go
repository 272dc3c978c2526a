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

	"github.com/kirillkom/medical-evidence-rag/internal/bootstrap"
	"github.com/kirillkom/medical-evidence-rag/internal/config"
	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/medical-evidence-rag/internal/observability/logging"
	"github.com/kirillkom/medical-evidence-rag/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker_exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:          logger,
		Observer:        workerMetrics.Retrieval(),
		BreakerListener: workerMetrics.Retrieval().ObserveBreakerState,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		HandlerTimeout:     cfg.NATSRequestTimeout,
		ResilienceExecutor: app.Executor,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	defer queue.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	return queue.ServeRetrieval(ctx, func(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
		started := time.Now()
		workerMetrics.StartRequest()
		result, err := app.Retriever.Retrieve(ctx, req)
		if err == nil {
			err = result.OutageError("worker retrieve")
		}
		workerMetrics.FinishRequest(serviceName, time.Since(started), err)
		return result, err
	})
}
