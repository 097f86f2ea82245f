// internal/database/open.go
package database

import (
	"context"
	"fmt"

	"twiller/internal/config"

	"github.com/rs/zerolog"
)

// Open builds the Store selected by cfg.Type.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case config.DBTypeMemory, "":
		logger.Warn().Msg("Using in-memory storage; data is lost on restart")
		return NewMemoryStore(), nil
	case config.DBTypeMongo:
		m, err := NewMongoDB(ctx, cfg.MongoURI, cfg.Name, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.DBTypePostgres, config.DBTypeSQLite:
		s, err := NewSQLStore(ctx, cfg.Type, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Type)
	}
}
