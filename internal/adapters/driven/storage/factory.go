// Package storage creates vector store adapters from settings.
package storage

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/qdrant"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// CreateVectorStore opens the vector store selected by settings. Any failure
// is a configuration error, since the run cannot start without a store.
func CreateVectorStore(ctx context.Context, settings domain.StoreSettings) (driven.VectorStore, error) {
	switch settings.Kind {
	case domain.StoreSQLite:
		s, err := sqlite.NewStore(settings.Dir)
		if err != nil {
			return nil, domain.NewConfigError("store_dir", "open sqlite store: %w", err)
		}
		return s, nil

	case domain.StorePostgres:
		s, err := postgres.NewStore(ctx, settings.DatabaseURL)
		if err != nil {
			return nil, domain.NewConfigError("database_url", "open postgres store: %w", err)
		}
		return s, nil

	case domain.StoreQdrant:
		s, err := qdrant.NewStore(qdrant.Config{URL: settings.QdrantURL, APIKey: settings.QdrantAPIKey})
		if err != nil {
			return nil, domain.NewConfigError("qdrant_url", "open qdrant store: %w", err)
		}
		return s, nil

	case domain.StoreMemory:
		return memory.NewVectorStore(), nil

	default:
		return nil, domain.NewConfigError("store", "unknown vector store %q", settings.Kind)
	}
}
