package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/memory"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/registry"
)

var discard = slog.New(slog.DiscardHandler)

type funcFactory struct {
	id string
	fn protocol.ActionHandlerFunc
}

func (f *funcFactory) ID() string             { return f.id }
func (f *funcFactory) Name() string           { return f.id }
func (f *funcFactory) Description() string    { return "test action " + f.id }
func (f *funcFactory) Schema() map[string]any { return nil }

func (f *funcFactory) Create(*slog.Logger) (protocol.ActionHandler, error) {
	return f.fn, nil
}

func echo(_ context.Context, config map[string]any, _ payload.Value) (payload.Value, error) {
	return payload.FromAny(config)
}

func newRegistry(t *testing.T, factories ...*funcFactory) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry(discard)

	require.NoError(t, reg.RegisterAction(&funcFactory{id: "echo", fn: echo}))

	for _, f := range factories {
		require.NoError(t, reg.RegisterAction(f))
	}

	return reg
}

func seed(t *testing.T, store persistence.Persistence, actions ...*models.Action) *models.Run {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, store.Workflows().Create(ctx, &models.Workflow{
		ID:      "wf-1",
		Name:    "Chain",
		OwnerID: "owner",
		Trigger: &models.Trigger{ID: "tr-1", Type: models.TriggerTypeTelegram},
		Actions: actions,
	}))

	run := &models.Run{
		ID:         "run-1",
		WorkflowID: "wf-1",
		MetaData:   payload.Object(payload.Member{Key: "collectedEmail", Value: payload.String("a@b.c")}),
		Status:     models.RunStatusCreated,
		CreatedAt:  time.Now(),
	}

	require.NoError(t, store.Runs().Create(ctx, run))
	require.NoError(t, store.Runs().MarkRunning(ctx, run.ID, time.Now()))

	return run
}

func request(runID string) eventbus.Message {
	return eventbus.Message{Topic: "run-requested", Key: "wf-1", Body: []byte(`{"runId":"` + runID + `"}`)}
}

func TestExecute_NestsPayloadPerAction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	run := seed(t, store,
		&models.Action{ID: "a-1", SortOrder: 0, TypeName: "echo", Config: map[string]any{"value": "{{collectedEmail}}"}},
		&models.Action{ID: "a-2", SortOrder: 1, TypeName: "echo", Config: map[string]any{"value": "{{ action.value }}!"}},
		&models.Action{ID: "a-3", SortOrder: 2, TypeName: "echo", Config: map[string]any{"value": "{{prev.action.value}}|{{missing}}"}},
	)

	executor := NewExecutor(discard, store.Runs(), newRegistry(t), Config{})

	assert.Equal(t, eventbus.Commit, executor.HandleRunRequested(ctx, request(run.ID)))

	stored, err := store.Runs().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Empty(t, stored.Error)
	require.NotNil(t, stored.FinishedAt)

	assert.JSONEq(t, `{
		"prev": {
			"prev": {
				"prev": {"collectedEmail": "a@b.c"},
				"action": {"value": "a@b.c"}
			},
			"action": {"value": "a@b.c!"}
		},
		"action": {"value": "a@b.c|{{missing}}"}
	}`, stored.Result.String())

	meta, ok := stored.Result.Lookup("prev", "prev", "prev", "collectedEmail")
	require.True(t, ok)
	assert.Equal(t, "a@b.c", meta.String())
}

func TestExecute_EmptyChainCompletesWithMetadata(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	run := seed(t, store)

	result, err := NewExecutor(discard, store.Runs(), newRegistry(t), Config{}).Execute(ctx, run.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"collectedEmail":"a@b.c"}`, result.String())
}

func TestExecute_TracesRunAndActions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	run := seed(t, store,
		&models.Action{ID: "a-1", SortOrder: 0, TypeName: "echo", Config: map[string]any{"value": "x"}},
	)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	executor := NewExecutor(discard, store.Runs(), newRegistry(t), Config{WorkerID: "worker-1"})
	executor.tracer = provider.Tracer("test")

	_, err := executor.Execute(ctx, run.ID)
	require.NoError(t, err)

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	action, runSpan := ended[0], ended[1]

	assert.Equal(t, "action echo", action.Name())
	assert.Contains(t, action.Attributes(), attribute.String(otelhelper.RunIDKey, run.ID))
	assert.Contains(t, action.Attributes(), attribute.String(otelhelper.ActionIDKey, "a-1"))
	assert.Equal(t, runSpan.SpanContext().SpanID(), action.Parent().SpanID())

	assert.Equal(t, "run", runSpan.Name())
	assert.Contains(t, runSpan.Attributes(), attribute.String(otelhelper.RunIDKey, run.ID))
	assert.Contains(t, runSpan.Attributes(), attribute.String(otelhelper.WorkflowIDKey, "wf-1"))
	assert.Contains(t, runSpan.Attributes(), attribute.String(otelhelper.WorkerIDKey, "worker-1"))
}

func TestHandleRunRequested_Malformed(t *testing.T) {
	executor := NewExecutor(discard, &mocks.MockRunRepository{}, newRegistry(t), Config{})

	for _, body := range []string{``, `{}`, `{"runId":""}`, `nope`} {
		decision := executor.HandleRunRequested(context.Background(), eventbus.Message{Body: []byte(body)})
		assert.Equal(t, eventbus.Skip, decision, "body %q", body)
	}
}

func TestHandleRunRequested_RunNotFound(t *testing.T) {
	store := memory.NewPersistence()
	executor := NewExecutor(discard, store.Runs(), newRegistry(t), Config{})

	assert.Equal(t, eventbus.Redeliver, executor.HandleRunRequested(context.Background(), request("missing")))

	_, err := executor.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestHandleRunRequested_StoreFailure(t *testing.T) {
	runs := &mocks.MockRunRepository{}
	runs.On("GetWithChain", mock.Anything, "run-1").Return(nil, errors.New("connection refused"))

	executor := NewExecutor(discard, runs, newRegistry(t), Config{})

	assert.Equal(t, eventbus.Redeliver, executor.HandleRunRequested(context.Background(), request("run-1")))

	_, err := executor.Execute(context.Background(), "run-1")
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.Equal(t, KindStoreFailure, KindOf(err))
}

func TestExecute_UnregisteredActionFailsRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	run := seed(t, store,
		&models.Action{ID: "a-1", SortOrder: 0, TypeName: "echo", Config: map[string]any{"value": "first"}},
		&models.Action{ID: "a-2", SortOrder: 1, TypeName: "send_fax"},
		&models.Action{ID: "a-3", SortOrder: 2, TypeName: "echo"},
	)

	executor := NewExecutor(discard, store.Runs(), newRegistry(t), Config{})

	assert.Equal(t, eventbus.Commit, executor.HandleRunRequested(ctx, request(run.ID)))

	stored, err := store.Runs().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, models.RunErrorActionNotFound, stored.Error)
	assert.JSONEq(t, `{"prev":{"collectedEmail":"a@b.c"},"action":{"value":"first"}}`, stored.Result.String())

	_, err = NewExecutor(discard, store.Runs(), newRegistry(t), Config{}).Execute(ctx, run.ID)
	assert.ErrorIs(t, err, ErrActionNotRegistered)
	assert.True(t, registry.IsActionNotRegistered(err))
}

func TestExecute_HandlerErrorAbortsChain(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()

	var thirdCalled atomic.Bool

	reg := newRegistry(t,
		&funcFactory{id: "boom", fn: func(context.Context, map[string]any, payload.Value) (payload.Value, error) {
			return payload.Null(), errors.New("smtp unavailable")
		}},
		&funcFactory{id: "never", fn: func(context.Context, map[string]any, payload.Value) (payload.Value, error) {
			thirdCalled.Store(true)

			return payload.Null(), nil
		}},
	)

	run := seed(t, store,
		&models.Action{ID: "a-1", SortOrder: 0, TypeName: "echo", Config: map[string]any{"value": 1}},
		&models.Action{ID: "a-2", SortOrder: 1, TypeName: "boom"},
		&models.Action{ID: "a-3", SortOrder: 2, TypeName: "never"},
	)

	executor := NewExecutor(discard, store.Runs(), reg, Config{})

	assert.Equal(t, eventbus.Commit, executor.HandleRunRequested(ctx, request(run.ID)))
	assert.False(t, thirdCalled.Load())

	stored, err := store.Runs().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "smtp unavailable")
	assert.JSONEq(t, `{"prev":{"collectedEmail":"a@b.c"},"action":{"value":1}}`, stored.Result.String())
}

func TestExecute_ActionTimeout(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()

	release := make(chan struct{})
	defer close(release)

	reg := newRegistry(t,
		&funcFactory{id: "stuck", fn: func(context.Context, map[string]any, payload.Value) (payload.Value, error) {
			<-release

			return payload.Null(), nil
		}},
	)

	run := seed(t, store, &models.Action{ID: "a-1", TypeName: "stuck"})

	executor := NewExecutor(discard, store.Runs(), reg, Config{ActionTimeout: 20 * time.Millisecond})

	_, err := executor.Execute(ctx, run.ID)
	require.ErrorIs(t, err, ErrHandlerFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stored, err := store.Runs().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "deadline exceeded")
}

func TestExecute_PanickingHandlerFailsRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()

	reg := newRegistry(t,
		&funcFactory{id: "panics", fn: func(context.Context, map[string]any, payload.Value) (payload.Value, error) {
			panic("nil map")
		}},
	)

	run := seed(t, store, &models.Action{ID: "a-1", TypeName: "panics"})

	_, err := NewExecutor(discard, store.Runs(), reg, Config{}).Execute(ctx, run.ID)
	require.ErrorIs(t, err, ErrHandlerFailure)
	assert.Contains(t, err.Error(), "nil map")
}

func TestHandleRunRequested_DuplicateDeliveryExecutesTwice(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()

	var calls atomic.Int32

	reg := newRegistry(t,
		&funcFactory{id: "count", fn: func(context.Context, map[string]any, payload.Value) (payload.Value, error) {
			calls.Add(1)

			return payload.Bool(true), nil
		}},
	)

	run := seed(t, store, &models.Action{ID: "a-1", TypeName: "count"})
	executor := NewExecutor(discard, store.Runs(), reg, Config{})

	assert.Equal(t, eventbus.Commit, executor.HandleRunRequested(ctx, request(run.ID)))
	assert.Equal(t, eventbus.Commit, executor.HandleRunRequested(ctx, request(run.ID)))

	assert.Equal(t, int32(2), calls.Load())

	stored, err := store.Runs().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		err  error
		want eventbus.Decision
	}{
		{err: nil, want: eventbus.Commit},
		{err: &Error{Kind: KindMalformedMessage}, want: eventbus.Skip},
		{err: &Error{Kind: KindRunNotFound}, want: eventbus.Redeliver},
		{err: &Error{Kind: KindStoreFailure}, want: eventbus.Redeliver},
		{err: &Error{Kind: KindActionNotRegistered}, want: eventbus.Commit},
		{err: &Error{Kind: KindHandlerFailure}, want: eventbus.Commit},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Decide(tt.err), "kind %q", KindOf(tt.err))
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindHandlerFailure, RunID: "run-1", Err: errors.New("boom")}

	assert.Equal(t, "handler_failure (run run-1): boom", err.Error())
	assert.Equal(t, "run_not_found", ErrRunNotFound.Error())
	assert.NotErrorIs(t, err, ErrStoreFailure)
}
