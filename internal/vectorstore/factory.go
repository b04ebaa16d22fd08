package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/store"
)

// New builds the index selected by cfg.Provider. The sql index reads from
// st; the others need the embedding dimension to size their collections.
func New(ctx context.Context, cfg config.VectorStoreConfig, st *store.Store, dimension int, logger *logging.Logger) (Index, error) {
	switch cfg.Provider {
	case "", "sql":
		return NewSQLIndex(st, logger)
	case "chromem":
		return NewChromemIndex(cfg.Chromem, dimension, logger)
	case "qdrant":
		return NewQdrantIndex(ctx, cfg.Qdrant, dimension, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
