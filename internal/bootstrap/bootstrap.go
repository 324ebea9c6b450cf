// Package bootstrap opens the backends selected by config for the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"invigilens/internal/alerts"
	"invigilens/internal/config"
	"invigilens/internal/queue"
	"invigilens/internal/store"
)

const migrateTimeout = 15 * time.Second

// OpenStore opens the configured alert store and applies its schema. The
// returned close func is never nil.
func OpenStore(ctx context.Context, cfg config.App, logger *slog.Logger) (alerts.Store, func() error, error) {
	var (
		dialect store.Dialect
		dsn     string
	)
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory alert store, alerts are lost on restart")
		return alerts.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		dialect, dsn = store.SQLite, cfg.SQLitePath
	default:
		dialect, dsn = store.Postgres, cfg.DatabaseURL
	}

	db, err := store.NewDB(ctx, dialect, dsn)
	if db == nil {
		return nil, nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if err != nil {
		logger.Warn("database not reachable yet", "dialect", dialect, "error", err)
	}

	st := alerts.NewSQLStore(db)
	migrateCtx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()
	if err := st.Migrate(migrateCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate alerts schema: %w", err)
	}
	logger.Info("alert store ready", "dialect", dialect)
	return st, db.Close, nil
}

// OpenQueue builds the lifecycle queue. The Redis handle is nil for the
// in-memory backend.
func OpenQueue(cfg config.App, logger *slog.Logger) (queue.Queue, *store.Redis) {
	if cfg.QueueBackend == "redis" {
		rdb := store.NewRedis(cfg.RedisAddr)
		logger.Info("lifecycle queue on redis", "addr", cfg.RedisAddr, "key", cfg.QueueKey)
		return queue.NewRedisQueue(rdb.Client, cfg.QueueKey), rdb
	}
	return queue.NewInMemory(256), nil
}
