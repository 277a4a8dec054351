package vectorstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docchat/internal/config"
)

const (
	BackendSQL      = "sql"
	BackendQdrant   = "qdrant"
	BackendPGVector = "pgvector"
)

// Open builds the configured backend. db is only used by the sql backend.
func Open(ctx context.Context, cfg config.VectorConfig, db *gorm.DB) (Store, error) {
	switch cfg.Backend {
	case BackendSQL, "":
		return NewSQL(db)
	case BackendQdrant:
		return NewQdrant(ctx, QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.Dimension,
		})
	case BackendPGVector:
		return NewPGVector(ctx, cfg.PGVectorDSN, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.Backend)
	}
}
