package db

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/config"
)

// Open returns the backend selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		log.Info("Using in-memory store")
		return NewMemoryStore(), nil
	case config.BackendMongo:
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
		return s, nil
	case config.BackendPostgres:
		s, err := NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		log.Info("Connected to PostgreSQL")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
