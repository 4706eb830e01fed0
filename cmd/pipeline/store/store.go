// Package store selects the storage backend from configuration.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/metrial/cmd/pipeline/config"
	"github.com/HatiCode/metrial/pkg/storage"
)

// New creates the configured store. The redis backend fails fast when the
// server is unreachable; the memory backend sweeps expired records at a
// quarter of the retention period.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Retention)
		if err != nil {
			return nil, fmt.Errorf("connect redis store: %w", err)
		}
		logger.Info("using redis store", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "retention", cfg.Retention)
		return s, nil

	case "memory":
		cleanup := cfg.Retention / 4
		if cleanup < time.Minute {
			cleanup = time.Minute
		}
		logger.Info("using in-memory store", "retention", cfg.Retention)
		return storage.NewMemoryStoreWithRetention(cfg.Retention, cleanup), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage)
	}
}
