package config

import (
	"fmt"

	"github.com/songzhibin97/handlerchain/replaystore"
	"github.com/songzhibin97/handlerchain/replaystore/memstore"
	"github.com/songzhibin97/handlerchain/replaystore/pgstore"
	"github.com/songzhibin97/handlerchain/replaystore/redisstore"
)

// BuildStore constructs the replaystore.Store driver selected by cfg.
func BuildStore(cfg StoreConfig) (replaystore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return memstore.New(), nil
	case "postgres":
		return pgstore.New(&pgstore.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			MigrationPath:   cfg.Postgres.MigrationPath,
		})
	case "redis":
		return redisstore.New(redisstore.Config{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			Database:  cfg.Redis.Database,
			Timeout:   cfg.Redis.Timeout,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}
