package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
)

// Provider names accepted by NewStore.
const (
	ProviderQdrant  = "qdrant"
	ProviderChromem = "chromem"
)

// NewStore opens the store selected by cfg.Provider:
//   - "qdrant" (default): connects to cfg.URL over gRPC.
//   - "chromem": opens the embedded database at cfg.ChromemPath.
func NewStore(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger, metrics *Metrics) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Provider {
	case ProviderQdrant, "":
		store, err = OpenQdrant(ctx, cfg, logger, metrics)
	case ProviderChromem:
		store, err = NewChromemStore(cfg.ChromemPath, false, logger, metrics)
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s, %s)", ErrUnknownProvider, cfg.Provider, ProviderQdrant, ProviderChromem)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
