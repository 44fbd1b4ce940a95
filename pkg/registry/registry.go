// Package registry implements the action dispatch table: validated type names
// mapped to handlers.
package registry

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var actionTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ActionType is a validated action type name.
type ActionType string

func ParseActionType(name string) (ActionType, error) {
	if !actionTypePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidActionType, name)
	}

	return ActionType(name), nil
}

type entry struct {
	factory protocol.ActionFactory
	handler protocol.ActionHandler
	schema  *gojsonschema.Schema
}

type Registry struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	actions map[ActionType]entry
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger.With("module", "registry"),
		actions: make(map[ActionType]entry),
	}
}

// RegisterAction validates the factory id, compiles its schema and creates
// the handler that every lookup of this type will return.
func (r *Registry) RegisterAction(factory protocol.ActionFactory) error {
	actionType, err := ParseActionType(factory.ID())
	if err != nil {
		return err
	}

	var schema *gojsonschema.Schema

	if raw := factory.Schema(); raw != nil {
		schema, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
		if err != nil {
			return fmt.Errorf("compile schema for action '%s': %w", actionType, err)
		}
	}

	handler, err := factory.Create(r.logger.With("action_type", string(actionType)))
	if err != nil {
		return fmt.Errorf("create action '%s': %w", actionType, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[actionType]; exists {
		return fmt.Errorf("%w: %s", ErrActionAlreadyRegistered, actionType)
	}

	r.actions[actionType] = entry{factory: factory, handler: handler, schema: schema}
	r.logger.Debug("registered action", "action_type", actionType)

	return nil
}

func (r *Registry) Lookup(actionType ActionType) (protocol.ActionHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.actions[actionType]
	if !ok {
		return nil, &ActionNotRegisteredError{Type: string(actionType)}
	}

	return e.handler, nil
}

// LookupName parses name and looks it up. Invalid names are reported as not
// registered since no handler can ever exist for them.
func (r *Registry) LookupName(name string) (protocol.ActionHandler, error) {
	actionType, err := ParseActionType(name)
	if err != nil {
		return nil, &ActionNotRegisteredError{Type: name, Err: err}
	}

	return r.Lookup(actionType)
}

func (r *Registry) IsRegistered(name string) bool {
	_, err := r.LookupName(name)

	return err == nil
}

// Types returns the registered action types in sorted order.
func (r *Registry) Types() []ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]ActionType, 0, len(r.actions))
	for actionType := range r.actions {
		types = append(types, actionType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// ActionInfo describes a registered action for listings.
type ActionInfo struct {
	Type        ActionType     `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

func (r *Registry) Actions() []ActionInfo {
	types := r.Types()

	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ActionInfo, 0, len(types))
	for _, actionType := range types {
		factory := r.actions[actionType].factory
		infos = append(infos, ActionInfo{
			Type:        actionType,
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return infos
}

// ValidateConfig checks a stored action configuration against the schema of
// its type. Placeholders are plain strings at this point, so schemas should
// only constrain the presence and shape of fields.
func (r *Registry) ValidateConfig(name string, config map[string]any) error {
	actionType, err := ParseActionType(name)
	if err != nil {
		return &ActionNotRegisteredError{Type: name, Err: err}
	}

	r.mu.RLock()
	e, ok := r.actions[actionType]
	r.mu.RUnlock()

	if !ok {
		return &ActionNotRegisteredError{Type: name}
	}

	if e.schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := e.schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("validate config for action '%s': %w", actionType, err)
	}

	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}

	return &ConfigError{Type: name, Issues: issues}
}
