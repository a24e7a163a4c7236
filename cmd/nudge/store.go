package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hray3182/nudge/internal/completion"
	"github.com/hray3182/nudge/internal/config"
	"github.com/hray3182/nudge/internal/database"
	"github.com/hray3182/nudge/internal/localstore"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/repository"
	"github.com/hray3182/nudge/internal/scheduler"
)

// backend is everything the service reads and writes, whichever driver
// is configured.
type backend interface {
	scheduler.Storage
	completion.Storage
	models.PreferenceProvider
	GetOrCreatePreferences(ctx context.Context) (*models.Preferences, error)
	SavePreferences(ctx context.Context, p *models.Preferences) error
	Ping(ctx context.Context) error
	Close() error
}

type postgresBackend struct {
	*repository.Store
	db *database.DB
}

func (b *postgresBackend) Ping(ctx context.Context) error {
	return b.db.Pool.Ping(ctx)
}

func (b *postgresBackend) Close() error {
	b.db.Close()
	return nil
}

// openBackend connects to the configured store and brings its schema up
// to date.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, logger); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to postgres")
		return &postgresBackend{
			Store: repository.NewStore(db.Pool, cfg.DefaultLeadMinutes),
			db:    db,
		}, nil
	case config.DriverSQLite:
		st, err := localstore.Open(cfg.SQLitePath, cfg.DefaultLeadMinutes)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", "path", cfg.SQLitePath)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
