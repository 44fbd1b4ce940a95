package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrActionNotRegistered indicates no handler exists for an action type.
	ErrActionNotRegistered = errors.New("action not registered")

	// ErrInvalidActionType indicates a type name that can never be registered.
	ErrInvalidActionType = errors.New("invalid action type")

	// ErrActionAlreadyRegistered indicates a second factory for the same type.
	ErrActionAlreadyRegistered = errors.New("action already registered")

	// ErrInvalidActionConfig indicates a configuration rejected by the action schema.
	ErrInvalidActionConfig = errors.New("invalid action config")
)

// ActionNotRegisteredError is returned by lookups that miss the dispatch table.
type ActionNotRegisteredError struct {
	Type string
	Err  error
}

func (e *ActionNotRegisteredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("action type '%s' not registered: %v", e.Type, e.Err)
	}

	return fmt.Sprintf("action type '%s' not registered", e.Type)
}

func (e *ActionNotRegisteredError) Unwrap() error {
	return e.Err
}

func (e *ActionNotRegisteredError) Is(target error) bool {
	return target == ErrActionNotRegistered
}

func IsActionNotRegistered(err error) bool {
	return errors.Is(err, ErrActionNotRegistered)
}

// ConfigError lists the schema violations of an action configuration.
type ConfigError struct {
	Type   string
	Issues []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config for action '%s': %v", e.Type, e.Issues)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidActionConfig
}
