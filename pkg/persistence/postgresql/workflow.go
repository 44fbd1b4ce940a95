package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/sqlbase"
)

// WorkflowRepository handles workflow, trigger and action rows.
type WorkflowRepository struct {
	q      sqlbase.Querier
	logger *slog.Logger
}

// Create inserts the workflow, its trigger and its actions. Outside a
// transaction it opens one so the aggregate is written atomically.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	if db, ok := r.q.(*sql.DB); ok {
		return sqlbase.WithTransaction(ctx, db, func(tx *sql.Tx) error {
			return (&WorkflowRepository{q: tx, logger: r.logger}).create(ctx, workflow)
		})
	}

	return r.create(ctx, workflow)
}

func (r *WorkflowRepository) create(ctx context.Context, workflow *models.Workflow) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		workflow.ID, workflow.Name, workflow.Description, workflow.OwnerID, workflow.CreatedAt, workflow.UpdatedAt,
	)
	if err != nil {
		if isPQError(err, uniqueViolation) {
			return persistence.NewWorkflowError("Create", workflow.ID, persistence.ErrWorkflowAlreadyExists)
		}

		return persistence.NewWorkflowError("Create", workflow.ID, err)
	}

	if trigger := workflow.Trigger; trigger != nil {
		configJSON, err := marshalConfig(trigger.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal trigger config: %w", err)
		}

		_, err = r.q.ExecContext(ctx, `
			INSERT INTO triggers (id, workflow_id, type, config, channel_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			trigger.ID, workflow.ID, trigger.Type, configJSON, nullString(trigger.ChannelID), trigger.CreatedAt,
		)
		if err != nil {
			return persistence.NewWorkflowError("CreateTrigger", workflow.ID, err)
		}
	}

	for _, action := range workflow.Actions {
		configJSON, err := marshalConfig(action.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal action config: %w", err)
		}

		_, err = r.q.ExecContext(ctx, `
			INSERT INTO actions (id, workflow_id, sort_order, type_name, config, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			action.ID, workflow.ID, action.SortOrder, action.TypeName, configJSON, action.CreatedAt,
		)
		if err != nil {
			return persistence.NewWorkflowError("CreateAction", workflow.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, description, owner_id, created_at, updated_at
		FROM workflows
		WHERE id = $1`, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if err := r.loadChildren(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) ListByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT w.id, w.name, w.description, w.owner_id, w.created_at, w.updated_at
		FROM workflows w
		JOIN triggers t ON t.workflow_id = w.id
		WHERE t.type = $1
		ORDER BY w.id`, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows by trigger type: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadChildren(ctx, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) loadChildren(ctx context.Context, workflow *models.Workflow) error {
	trigger, err := r.triggerOf(ctx, workflow.ID)
	if err != nil {
		return err
	}

	workflow.Trigger = trigger

	actions, err := actionsOf(ctx, r.q, r.logger, workflow.ID)
	if err != nil {
		return err
	}

	workflow.Actions = actions

	return nil
}

func (r *WorkflowRepository) triggerOf(ctx context.Context, workflowID string) (*models.Trigger, error) {
	var (
		trigger    models.Trigger
		configJSON []byte
		channelID  sql.NullString
	)

	err := r.q.QueryRowContext(ctx, `
		SELECT id, workflow_id, type, config, channel_id, created_at
		FROM triggers
		WHERE workflow_id = $1`, workflowID,
	).Scan(&trigger.ID, &trigger.WorkflowID, &trigger.Type, &configJSON, &channelID, &trigger.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewWorkflowError("GetTrigger", workflowID, err)
	}

	trigger.ChannelID = channelID.String

	if trigger.Config, err = unmarshalConfig(configJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	return &trigger, nil
}

// actionsOf loads the workflow's actions in execution order.
func actionsOf(ctx context.Context, q sqlbase.Querier, logger *slog.Logger, workflowID string) ([]*models.Action, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, workflow_id, sort_order, type_name, config, created_at
		FROM actions
		WHERE workflow_id = $1
		ORDER BY sort_order ASC, id ASC`, workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetActions", workflowID, err)
	}

	defer closeRows(ctx, logger, rows)

	actions := make([]*models.Action, 0)

	for rows.Next() {
		var (
			action     models.Action
			configJSON []byte
		)

		err := rows.Scan(&action.ID, &action.WorkflowID, &action.SortOrder, &action.TypeName, &configJSON, &action.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		if action.Config, err = unmarshalConfig(configJSON); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action config: %w", err)
		}

		actions = append(actions, &action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate actions: %w", err)
	}

	return actions, nil
}

func (r *WorkflowRepository) DeleteActions(ctx context.Context, workflowID string) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM actions WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return 0, persistence.NewWorkflowError("DeleteActions", workflowID, err)
	}

	return sqlbase.RowsAffected(result), nil
}

func (r *WorkflowRepository) DeleteTrigger(ctx context.Context, workflowID string) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM triggers WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return 0, persistence.NewWorkflowError("DeleteTrigger", workflowID, err)
	}

	return sqlbase.RowsAffected(result), nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		if isPQError(err, foreignKeyViolation) {
			return persistence.NewWorkflowError("Delete", id, persistence.ErrForeignKeyViolation)
		}

		return persistence.NewWorkflowError("Delete", id, err)
	}

	if sqlbase.RowsAffected(result) == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func scanWorkflow(scanner sqlbase.Scanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := scanner.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.OwnerID,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

func marshalConfig(config map[string]any) ([]byte, error) {
	if config == nil {
		config = map[string]any{}
	}

	return json.Marshal(config)
}

func unmarshalConfig(data []byte) (map[string]any, error) {
	config := map[string]any{}

	if len(data) == 0 {
		return config, nil
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	return config, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
