package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/sqlbase"
)

// RunRepository handles run rows and their status transitions.
type RunRepository struct {
	q      sqlbase.Querier
	logger *slog.Logger
}

const runColumns = `id, workflow_id, meta_data, status, result, error, started_at, finished_at, created_at`

func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	metaJSON, err := run.MetaData.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_id, meta_data, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.WorkflowID, metaJSON, run.Status, run.CreatedAt,
	)
	if err != nil {
		if isPQError(err, foreignKeyViolation) {
			return persistence.NewRunError("Create", run.ID, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewRunError("Create", run.ID, err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", id, err)
	}

	return run, nil
}

func (r *RunRepository) GetWithChain(ctx context.Context, id string) (*models.RunChain, error) {
	run, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflows := &WorkflowRepository{q: r.q, logger: r.logger}

	workflow, err := workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		return nil, persistence.NewRunError("GetWithChain", id, err)
	}

	return &models.RunChain{Run: run, Workflow: workflow, Actions: workflow.Actions}, nil
}

func (r *RunRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE runs SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`,
		id, models.RunStatusRunning, startedAt, models.RunStatusCreated,
	)
	if err != nil {
		return persistence.NewRunError("MarkRunning", id, err)
	}

	return r.checkTransition(ctx, "MarkRunning", id, result)
}

func (r *RunRepository) Finish(ctx context.Context, id string, outcome persistence.RunOutcome) error {
	if outcome.Status != models.RunStatusCompleted && outcome.Status != models.RunStatusFailed {
		return persistence.NewRunError("Finish", id, persistence.ErrInvalidRunTransition)
	}

	resultJSON, err := outcome.Result.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}

	result, err := r.q.ExecContext(ctx, `
		UPDATE runs SET status = $2, result = $3, error = $4, finished_at = $5
		WHERE id = $1 AND status = $6`,
		id, outcome.Status, resultJSON, nullString(outcome.Error), outcome.FinishedAt, models.RunStatusRunning,
	)
	if err != nil {
		return persistence.NewRunError("Finish", id, err)
	}

	return r.checkTransition(ctx, "Finish", id, result)
}

// checkTransition tells a missing run apart from one in the wrong status
// when a guarded update matched no row.
func (r *RunRepository) checkTransition(ctx context.Context, op, id string, result sql.Result) error {
	if sqlbase.RowsAffected(result) > 0 {
		return nil
	}

	var exists bool

	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return persistence.NewRunError(op, id, err)
	}

	if !exists {
		return persistence.NewRunError(op, id, persistence.ErrRunNotFound)
	}

	return persistence.NewRunError(op, id, persistence.ErrInvalidRunTransition)
}

func (r *RunRepository) DeleteByWorkflow(ctx context.Context, workflowID string) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM runs WHERE workflow_id = $1`, workflowID)
	if err != nil {
		if isPQError(err, foreignKeyViolation) {
			return 0, persistence.NewWorkflowError("DeleteRuns", workflowID, persistence.ErrForeignKeyViolation)
		}

		return 0, persistence.NewWorkflowError("DeleteRuns", workflowID, err)
	}

	return sqlbase.RowsAffected(result), nil
}

func scanRun(scanner sqlbase.Scanner) (*models.Run, error) {
	var (
		run        models.Run
		metaJSON   []byte
		resultJSON []byte
		runError   sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := scanner.Scan(
		&run.ID,
		&run.WorkflowID,
		&metaJSON,
		&run.Status,
		&resultJSON,
		&runError,
		&startedAt,
		&finishedAt,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if run.MetaData, err = parseJSONB(metaJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run metadata: %w", err)
	}

	if run.Result, err = parseJSONB(resultJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run result: %w", err)
	}

	run.Error = runError.String

	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return &run, nil
}

func parseJSONB(data []byte) (payload.Value, error) {
	if len(data) == 0 {
		return payload.Null(), nil
	}

	return payload.Parse(data)
}
