package repository

import (
	"context"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/config"
)

// Open returns a PostgreSQL store when DATABASE_URL is set and an in-memory store otherwise
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("database_url_empty_using_memory_store")
		return NewMemoryStore(), nil
	}
	db, err := NewPostgresDB(cfg.DatabaseURL, cfg.DatabaseMaxOpenConns, cfg.DatabaseMaxIdleConns)
	if err != nil {
		return nil, err
	}
	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
