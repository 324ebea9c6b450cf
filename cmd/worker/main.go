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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"invigilens/internal/audit"
	"invigilens/internal/bootstrap"
	"invigilens/internal/config"
	"invigilens/internal/logging"
	"invigilens/internal/metrics"
)

// Worker consumes alert lifecycle events from redis and keeps the audit
// trail and review metrics.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With("service", "worker")
	slog.SetDefault(logger)

	if cfg.QueueBackend != "redis" {
		logger.Error("worker needs QUEUE_BACKEND=redis; the api consumes the in-memory queue itself")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, rdb := bootstrap.OpenQueue(cfg, logger)
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		logger.Warn("redis not reachable yet, will keep retrying", "addr", cfg.RedisAddr, "error", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return audit.NewConsumer(q, m, logger).Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
