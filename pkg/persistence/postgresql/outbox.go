package postgresql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

// OutboxRepository handles the run outbox.
type OutboxRepository struct {
	q      sqlbase.Querier
	logger *slog.Logger
}

func (r *OutboxRepository) Create(ctx context.Context, entry *models.OutboxEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO outbox_entries (id, run_id, created_at)
		VALUES ($1, $2, $3)`,
		entry.ID, entry.RunID, entry.CreatedAt,
	)
	if err != nil {
		if isPQError(err, foreignKeyViolation) {
			return persistence.NewRunError("CreateOutboxEntry", entry.RunID, persistence.ErrRunNotFound)
		}

		return persistence.NewRunError("CreateOutboxEntry", entry.RunID, err)
	}

	return nil
}

func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, run_id, created_at
		FROM outbox_entries
		ORDER BY created_at ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox entries: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	var entries []*models.OutboxEntry

	for rows.Next() {
		var entry models.OutboxEntry

		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox entries: %w", err)
	}

	return entries, nil
}

func (r *OutboxRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.q.ExecContext(ctx, `DELETE FROM outbox_entries WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete outbox entries: %w", err)
	}

	return sqlbase.RowsAffected(result), nil
}

func (r *OutboxRepository) DeleteByWorkflow(ctx context.Context, workflowID string) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		DELETE FROM outbox_entries o
		USING runs r
		WHERE o.run_id = r.id AND r.workflow_id = $1`, workflowID)
	if err != nil {
		return 0, persistence.NewWorkflowError("DeleteOutboxEntries", workflowID, err)
	}

	return sqlbase.RowsAffected(result), nil
}
