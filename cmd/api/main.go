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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"invigilens/internal/alerts"
	"invigilens/internal/audit"
	"invigilens/internal/bootstrap"
	"invigilens/internal/config"
	"invigilens/internal/httpapi"
	"invigilens/internal/logging"
	"invigilens/internal/metrics"
	"invigilens/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	st, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	q, rdb := bootstrap.OpenQueue(cfg, logger)
	defer rdb.Close()

	events := alerts.NewOutbox(q, 0, logger)
	svc := alerts.NewService(st, events, m, logger)
	hub := relay.NewHub(relay.Config{
		MaxMessageBytes: cfg.RelayMaxMessageBytes,
		FrameBuffer:     cfg.RelayFrameBuffer,
		ControlBuffer:   cfg.RelayControlBuffer,
	}, m, logger)

	health := map[string]httpapi.HealthCheck{"store": svc.Ping}
	if rdb != nil {
		health["redis"] = rdb.Ping
	}

	r := httpapi.NewRouter(httpapi.Options{
		Alerts:          svc,
		Relay:           relay.NewServer(hub, logger),
		Metrics:         promhttp.Handler(),
		Health:          health,
		Logger:          logger,
		RateLimitPerMin: cfg.RateLimitPerMin,
		EvidenceDir:     cfg.EvidenceDir,
		WebDir:          cfg.WebDir,
	})

	// No read or write timeout: relay connections are long-lived and set
	// their own deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr, "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return events.Run(gctx) })
	if cfg.QueueBackend == "memory" {
		// An in-process queue has no other reader.
		g.Go(func() error {
			return audit.NewConsumer(q, m, logger).Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// Give outstanding requests 10 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server forced shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server exited", "participants", hub.Len())
	return err
}
