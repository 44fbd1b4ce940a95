package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	logaction "github.com/dukex/flowrun/pkg/actions/log"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence/memory"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/dukex/flowrun/pkg/web"
)

type testEnv struct {
	app   *fiber.App
	store *memory.Persistence
	bus   *mocks.MockEventBus
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterAction(logaction.NewLogActionFactory()))

	store := memory.NewPersistence()
	bus := &mocks.MockEventBus{}

	workflowService := services.NewWorkflow(store, reg)
	handlers := web.NewAPIHandlers(
		workflowService,
		services.NewRun(store, workflowService),
		services.NewTrigger(store.Workflows(), bus, events.TriggerEventTopic),
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
	)

	app := fiber.New()
	handlers.Mount(app)

	return &testEnv{app: app, store: store, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func (e *testEnv) createWorkflow(t *testing.T, triggerType models.TriggerType) *models.Workflow {
	t.Helper()

	req := web.CreateWorkflowRequest{
		Name:    "Order follow-up",
		OwnerID: "user-1",
		Trigger: web.TriggerRequest{Type: triggerType},
		Actions: []web.CreateActionRequest{
			{Type: "log", Config: map[string]any{"message": "order {{orderId}}"}},
			{Type: "log", Config: map[string]any{"message": "done", "level": "debug"}},
		},
	}

	body, err := json.Marshal(req)
	require.NoError(t, err)

	status, data := e.do(t, http.MethodPost, "/workflows", string(body))
	require.Equal(t, http.StatusCreated, status, string(data))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(data, &workflow))

	return &workflow
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	env := setupTestApp(t)

	workflow := env.createWorkflow(t, models.TriggerTypeWebhook)

	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, "Order follow-up", workflow.Name)
	require.NotNil(t, workflow.Trigger)
	assert.Equal(t, models.TriggerTypeWebhook, workflow.Trigger.Type)
	require.Len(t, workflow.Actions, 2)
	assert.Equal(t, 0, workflow.Actions[0].SortOrder)
	assert.Equal(t, "order {{orderId}}", workflow.Actions[0].Config["message"])
	assert.Equal(t, 1, workflow.Actions[1].SortOrder)

	status, data := env.do(t, http.MethodGet, "/workflows/"+workflow.ID, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), workflow.ID)
}

func TestAPIHandlers_CreateWorkflow_Errors(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "invalid json",
			body:           `{"name":`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "missing owner",
			body:           `{"name":"Flow","trigger":{"type":"manual"},"actions":[{"type":"log"}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "no actions",
			body:           `{"name":"Flow","owner_id":"u","trigger":{"type":"manual"},"actions":[]}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "unregistered action type",
			body:           `{"name":"Flow","owner_id":"u","trigger":{"type":"manual"},"actions":[{"type":"send_fax"}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "config rejected by schema",
			body:           `{"name":"Flow","owner_id":"u","trigger":{"type":"manual"},"actions":[{"type":"log","config":{"level":"loud"}}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "unknown trigger type",
			body:           `{"name":"Flow","owner_id":"u","trigger":{"type":"fax"},"actions":[{"type":"log"}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			status, data := env.do(t, http.MethodPost, "/workflows", tt.body)
			assert.Equal(t, tt.expectedStatus, status)

			var problem map[string]any
			require.NoError(t, json.Unmarshal(data, &problem))
			assert.Equal(t, tt.expectedType, problem["type"])
		})
	}
}

func TestAPIHandlers_GetWorkflow_NotFound(t *testing.T) {
	env := setupTestApp(t)

	status, data := env.do(t, http.MethodGet, "/workflows/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(data), "workflow_not_found")
}

func TestAPIHandlers_EnqueueRun(t *testing.T) {
	env := setupTestApp(t)
	workflow := env.createWorkflow(t, models.TriggerTypeManual)

	status, data := env.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/runs", `{"meta_data":{"orderId":42}}`)
	require.Equal(t, http.StatusAccepted, status, string(data))

	var run models.Run
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, models.RunStatusCreated, run.Status)
	assert.Equal(t, workflow.ID, run.WorkflowID)

	pending, err := env.store.Outbox().Pending(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, run.ID, pending[0].RunID)

	status, data = env.do(t, http.MethodGet, "/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), `"orderId":42`)

	status, _ = env.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/runs", "")
	assert.Equal(t, http.StatusAccepted, status)

	status, _ = env.do(t, http.MethodPost, "/workflows/missing/runs", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, data = env.do(t, http.MethodGet, "/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(data), "run_not_found")
}

func TestAPIHandlers_Webhook(t *testing.T) {
	env := setupTestApp(t)
	hook := env.createWorkflow(t, models.TriggerTypeWebhook)
	manual := env.createWorkflow(t, models.TriggerTypeManual)

	env.bus.On("Publish", mock.Anything, events.TriggerEventTopic, hook.ID,
		mock.MatchedBy(func(body []byte) bool {
			event, err := events.DecodeTriggerEvent(body)

			return err == nil &&
				event.Trigger == models.TriggerTypeWebhook &&
				bytes.Contains(body, []byte(`"payload":{"orderId":"A-1"}`))
		})).Return(nil).Once()

	status, data := env.do(t, http.MethodPost, "/hooks/"+hook.ID, `{"orderId":"A-1"}`)
	assert.Equal(t, http.StatusAccepted, status, string(data))

	status, _ = env.do(t, http.MethodPost, "/hooks/"+manual.ID, `{}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPost, "/hooks/"+hook.ID, `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/hooks/missing", `{}`)
	assert.Equal(t, http.StatusNotFound, status)

	env.bus.AssertExpectations(t)
}

func TestAPIHandlers_DeleteWorkflow(t *testing.T) {
	env := setupTestApp(t)
	workflow := env.createWorkflow(t, models.TriggerTypeManual)

	status, _ := env.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/runs", "")
	require.Equal(t, http.StatusAccepted, status)

	status, _ = env.do(t, http.MethodDelete, "/workflows/"+workflow.ID, "")
	assert.Equal(t, http.StatusNoContent, status)

	pending, err := env.store.Outbox().Pending(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	status, _ = env.do(t, http.MethodGet, "/workflows/"+workflow.ID, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodDelete, "/workflows/"+workflow.ID, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ActionsAndHealth(t *testing.T) {
	env := setupTestApp(t)

	status, data := env.do(t, http.MethodGet, "/actions", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), `"type":"log"`)

	status, data = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)

	var health map[string]any
	require.NoError(t, json.Unmarshal(data, &health))
	assert.Equal(t, "healthy", health["status"])
}
