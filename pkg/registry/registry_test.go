package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFactory struct {
	id        string
	schema    map[string]any
	createErr error
}

func (f *fakeFactory) ID() string             { return f.id }
func (f *fakeFactory) Name() string           { return "Fake " + f.id }
func (f *fakeFactory) Description() string    { return "fake action" }
func (f *fakeFactory) Schema() map[string]any { return f.schema }

func (f *fakeFactory) Create(_ *slog.Logger) (protocol.ActionHandler, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}

	return protocol.ActionHandlerFunc(func(_ context.Context, config map[string]any, _ payload.Value) (payload.Value, error) {
		return payload.FromAny(map[string]any{"echo": config["value"]})
	}), nil
}

func TestParseActionType(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"log", "send_email", "http_request2"} {
		actionType, err := ParseActionType(valid)
		require.NoError(t, err, valid)
		assert.Equal(t, ActionType(valid), actionType)
	}

	for _, invalid := range []string{"", "Log", "1log", "send-email", "a b", string(make([]byte, 70))} {
		_, err := ParseActionType(invalid)
		require.ErrorIs(t, err, ErrInvalidActionType, invalid)
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	require.NoError(t, r.RegisterAction(&fakeFactory{id: "echo"}))

	handler, err := r.Lookup("echo")
	require.NoError(t, err)

	result, err := handler.Invoke(context.Background(), map[string]any{"value": "hi"}, payload.Null())
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"hi"}`, result.String())

	assert.True(t, r.IsRegistered("echo"))
	assert.Equal(t, []ActionType{"echo"}, r.Types())
}

func TestRegistry_LookupMiss(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())

	_, err := r.Lookup("missing")
	require.Error(t, err)
	assert.True(t, IsActionNotRegistered(err))

	var notRegistered *ActionNotRegisteredError
	require.ErrorAs(t, err, &notRegistered)
	assert.Equal(t, "missing", notRegistered.Type)

	_, err = r.LookupName("Not Valid")
	assert.True(t, IsActionNotRegistered(err))
	assert.ErrorIs(t, err, ErrInvalidActionType)
	assert.False(t, r.IsRegistered("Not Valid"))
}

func TestRegistry_RegisterErrors(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	require.NoError(t, r.RegisterAction(&fakeFactory{id: "echo"}))

	err := r.RegisterAction(&fakeFactory{id: "echo"})
	require.ErrorIs(t, err, ErrActionAlreadyRegistered)

	err = r.RegisterAction(&fakeFactory{id: "Bad-Name"})
	require.ErrorIs(t, err, ErrInvalidActionType)

	boom := errors.New("boom")
	err = r.RegisterAction(&fakeFactory{id: "broken", createErr: boom})
	require.ErrorIs(t, err, boom)
	assert.False(t, r.IsRegistered("broken"))
}

func TestRegistry_ValidateConfig(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	require.NoError(t, r.RegisterAction(&fakeFactory{
		id: "mail",
		schema: map[string]any{
			"type":     "object",
			"required": []any{"to"},
			"properties": map[string]any{
				"to": map[string]any{"type": "string"},
			},
		},
	}))

	require.NoError(t, r.ValidateConfig("mail", map[string]any{"to": "{{email}}"}))

	err := r.ValidateConfig("mail", map[string]any{})
	require.ErrorIs(t, err, ErrInvalidActionConfig)

	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.NotEmpty(t, configErr.Issues)

	err = r.ValidateConfig("nope", nil)
	assert.True(t, IsActionNotRegistered(err))
}

func TestRegistry_Actions(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	require.NoError(t, r.RegisterAction(&fakeFactory{id: "b"}))
	require.NoError(t, r.RegisterAction(&fakeFactory{id: "a"}))

	infos := r.Actions()
	require.Len(t, infos, 2)
	assert.Equal(t, ActionType("a"), infos[0].Type)
	assert.Equal(t, "Fake a", infos[0].Name)
}
