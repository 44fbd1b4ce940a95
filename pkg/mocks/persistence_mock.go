package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	args := m.Called(ctx, triggerType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) DeleteActions(ctx context.Context, workflowID string) (int64, error) {
	args := m.Called(ctx, workflowID)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWorkflowRepository) DeleteTrigger(ctx context.Context, workflowID string) (int64, error) {
	args := m.Called(ctx, workflowID)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockRunRepository is a mock implementation of persistence.RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockRunRepository) GetWithChain(ctx context.Context, id string) (*models.RunChain, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RunChain), args.Error(1)
}

func (m *MockRunRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	args := m.Called(ctx, id, startedAt)

	return args.Error(0)
}

func (m *MockRunRepository) Finish(ctx context.Context, id string, outcome persistence.RunOutcome) error {
	args := m.Called(ctx, id, outcome)

	return args.Error(0)
}

func (m *MockRunRepository) DeleteByWorkflow(ctx context.Context, workflowID string) (int64, error) {
	args := m.Called(ctx, workflowID)

	return args.Get(0).(int64), args.Error(1)
}

// MockOutboxRepository is a mock implementation of persistence.OutboxRepository interface.
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, entry *models.OutboxEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockOutboxRepository) Pending(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.OutboxEntry), args.Error(1)
}

func (m *MockOutboxRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxRepository) DeleteByWorkflow(ctx context.Context, workflowID string) (int64, error) {
	args := m.Called(ctx, workflowID)

	return args.Get(0).(int64), args.Error(1)
}

// MockPersistence wires the repository mocks together. Transaction runs the
// function against the same mocks.
type MockPersistence struct {
	mock.Mock

	workflows *MockWorkflowRepository
	runs      *MockRunRepository
	outbox    *MockOutboxRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflows: &MockWorkflowRepository{},
		runs:      &MockRunRepository{},
		outbox:    &MockOutboxRepository{},
	}
}

func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflows
}

func (m *MockPersistence) GetMockRunRepository() *MockRunRepository {
	return m.runs
}

func (m *MockPersistence) GetMockOutboxRepository() *MockOutboxRepository {
	return m.outbox
}

func (m *MockPersistence) Workflows() persistence.WorkflowRepository {
	return m.workflows
}

func (m *MockPersistence) Runs() persistence.RunRepository {
	return m.runs
}

func (m *MockPersistence) Outbox() persistence.OutboxRepository {
	return m.outbox
}

func (m *MockPersistence) Transaction(ctx context.Context, fn func(tx persistence.Repositories) error) error {
	m.Called(ctx)

	return fn(m)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
