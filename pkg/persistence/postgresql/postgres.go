// Package postgresql provides the PostgreSQL store for workflows, runs and the outbox.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence connects, verifies the connection and runs migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{db: database, logger: logger}, nil
}

func (p *Persistence) repositories(q sqlbase.Querier) repositories {
	return repositories{q: q, logger: p.logger}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.repositories(p.db).Workflows()
}

func (p *Persistence) Runs() persistence.RunRepository {
	return p.repositories(p.db).Runs()
}

func (p *Persistence) Outbox() persistence.OutboxRepository {
	return p.repositories(p.db).Outbox()
}

// Transaction runs fn with repositories bound to a single database transaction.
func (p *Persistence) Transaction(ctx context.Context, fn func(tx persistence.Repositories) error) error {
	return sqlbase.WithTransaction(ctx, p.db, func(tx *sql.Tx) error {
		return fn(p.repositories(tx))
	})
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

type repositories struct {
	q      sqlbase.Querier
	logger *slog.Logger
}

func (r repositories) Workflows() persistence.WorkflowRepository {
	return &WorkflowRepository{q: r.q, logger: r.logger}
}

func (r repositories) Runs() persistence.RunRepository {
	return &RunRepository{q: r.q, logger: r.logger}
}

func (r repositories) Outbox() persistence.OutboxRepository {
	return &OutboxRepository{q: r.q, logger: r.logger}
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
