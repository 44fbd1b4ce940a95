package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/memory"
	"github.com/dukex/flowrun/pkg/persistence/postgresql"
)

var ErrUnsupportedDatabase = errors.New("unsupported database url")

// NewPersistence opens the store named by the database url scheme:
// postgres:// or postgresql:// for PostgreSQL and memory:// for the
// in-process store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return store, nil
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence, data is lost on exit")

		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDatabase, databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
