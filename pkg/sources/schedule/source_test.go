package schedule

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/persistence/memory"
)

func seedWorkflow(t *testing.T, store *memory.Persistence, id string, triggerType models.TriggerType, config map[string]any) {
	t.Helper()

	err := store.Workflows().Create(t.Context(), &models.Workflow{
		ID:      id,
		Name:    "Workflow " + id,
		OwnerID: "user-1",
		Trigger: &models.Trigger{ID: "trg-" + id, Type: triggerType, Config: config},
		Actions: []*models.Action{{ID: "act-" + id, TypeName: "log"}},
	})
	require.NoError(t, err)
}

func deleteWorkflow(t *testing.T, store *memory.Persistence, id string) {
	t.Helper()

	ctx := t.Context()

	_, err := store.Workflows().DeleteActions(ctx, id)
	require.NoError(t, err)
	_, err = store.Workflows().DeleteTrigger(ctx, id)
	require.NoError(t, err)
	require.NoError(t, store.Workflows().Delete(ctx, id))
}

func newTestSource(store *memory.Persistence) *Source {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewSource(store.Workflows(), time.Hour, logger)
}

func TestCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		trigger *models.Trigger
		want    string
		wantErr bool
	}{
		{name: "every five minutes", trigger: &models.Trigger{Config: map[string]any{"cron": "*/5 * * * *"}}, want: "*/5 * * * *"},
		{name: "descriptor", trigger: &models.Trigger{Config: map[string]any{"cron": "@hourly"}}, want: "@hourly"},
		{name: "missing", trigger: &models.Trigger{Config: map[string]any{}}, wantErr: true},
		{name: "not a string", trigger: &models.Trigger{Config: map[string]any{"cron": 5}}, wantErr: true},
		{name: "invalid", trigger: &models.Trigger{Config: map[string]any{"cron": "every tuesday"}}, wantErr: true},
		{name: "nil trigger", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CronExpression(tt.trigger)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSource_StartSchedulesWorkflows(t *testing.T) {
	ctx := t.Context()
	store := memory.NewPersistence()

	seedWorkflow(t, store, "wf-cron", models.TriggerTypeSchedule, map[string]any{"cron": "0 0 * * *"})
	seedWorkflow(t, store, "wf-broken", models.TriggerTypeSchedule, map[string]any{"cron": "nope"})
	seedWorkflow(t, store, "wf-hook", models.TriggerTypeWebhook, nil)

	source := newTestSource(store)

	require.NoError(t, source.Start(ctx, func(context.Context, string, models.TriggerType, payload.Value) error {
		return nil
	}))

	assert.Equal(t, map[string]string{"wf-cron": "0 0 * * *"}, source.Scheduled())

	seedWorkflow(t, store, "wf-late", models.TriggerTypeSchedule, map[string]any{"cron": "@hourly"})
	deleteWorkflow(t, store, "wf-cron")

	require.NoError(t, source.Reload(ctx))
	assert.Equal(t, map[string]string{"wf-late": "@hourly"}, source.Scheduled())

	require.NoError(t, source.Stop(ctx))
	require.NoError(t, source.Stop(ctx))
}

func TestSource_FirePublishesScheduledAt(t *testing.T) {
	ctx := t.Context()
	store := memory.NewPersistence()
	seedWorkflow(t, store, "wf-cron", models.TriggerTypeSchedule, map[string]any{"cron": "@daily"})

	source := newTestSource(store)
	source.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

	var (
		gotWorkflow string
		gotTrigger  models.TriggerType
		gotData     payload.Value
	)

	require.NoError(t, source.Start(ctx, func(_ context.Context, workflowID string, trigger models.TriggerType, data payload.Value) error {
		gotWorkflow, gotTrigger, gotData = workflowID, trigger, data

		return nil
	}))

	defer func() {
		require.NoError(t, source.Stop(ctx))
	}()

	source.fire(ctx, "wf-cron")()

	assert.Equal(t, "wf-cron", gotWorkflow)
	assert.Equal(t, models.TriggerTypeSchedule, gotTrigger)
	assert.Equal(t, `{"scheduledAt":"2025-03-01T09:30:00Z"}`, gotData.String())
}
