// Package store opens the campaign backend selected by configuration.
package store

import (
	"context"
	"fmt"
	"time"

	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/config"
	"larpcamp.org/internal/migrate"
	"larpcamp.org/internal/obs"
	"larpcamp.org/internal/store/memstore"
	"larpcamp.org/internal/store/pg"
	"larpcamp.org/internal/store/redisstore"
)

// Backend is a campaign store with the lifecycle hooks the binaries need.
type Backend interface {
	campaign.Store
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
	StreamKeys(ctx context.Context) ([]string, error)
	Close() error
}

var (
	_ Backend = (*memstore.Store)(nil)
	_ Backend = (*pg.Store)(nil)
	_ Backend = (*redisstore.Store)(nil)
)

// Open connects to the configured backend and verifies it answers. For
// Postgres, pending migrations run first when AutoMigrate is set.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		obs.Logger().Warn().Msg("using in-memory store; campaign state is lost on restart")
		return memstore.New(), nil
	case config.DriverPostgres:
		s, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := ping(ctx, s); err != nil {
			_ = s.Close()
			return nil, err
		}
		if cfg.AutoMigrate {
			applied, err := migrate.NewManager(s.DB(), pg.Migrations).Up(ctx)
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			for _, name := range applied {
				obs.Logger().Info().Str("migration", name).Msg("applied migration")
			}
		}
		return s, nil
	case config.DriverRedis:
		s, err := redisstore.Open(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := ping(ctx, s); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func ping(ctx context.Context, b interface{ Ping(context.Context) error }) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}
