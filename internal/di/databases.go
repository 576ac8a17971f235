package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/config"
	"github.com/aristath/watchtower/internal/database"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. watchtower.db - portfolios, snapshots, signals, alerts, arbiter state
	mainDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "watchtower.db"),
		Profile: database.ProfileLedger, // risk snapshots and dispatch records are never rewritten
		Name:    database.NameMain,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize main database: %w", err)
	}
	container.MainDB = mainDB

	// 2. cache.db - price bars and fundamentals, safe to lose
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    database.NameCache,
	})
	if err != nil {
		mainDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{mainDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized and schemas applied")
	return container, nil
}
