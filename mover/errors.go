package mover

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("mover: invalid configuration")
	// ErrVetoed marks an operation a guard declined. It is a normal abort
	// path and never reported as an error.
	ErrVetoed = errors.New("mover: vetoed by guard")
	// ErrDestroyed is returned by every operation after Destroy.
	ErrDestroyed = errors.New("mover: engine destroyed")
	// ErrNotFound is returned when a rule ID is unknown.
	ErrNotFound = errors.New("mover: not found")
)

// ConfigurationError reports a malformed rule.
type ConfigurationError struct {
	Rule   string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("mover: rule %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("mover: rule %q: %s: %s", e.Rule, e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// TargetResolutionError reports a selector that found no node when an
// operation ran.
type TargetResolutionError struct {
	Selector string
	Role     string // target | element | swap
	Err      error
}

func (e *TargetResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mover: %s %q: %v", e.Role, e.Selector, e.Err)
	}
	return fmt.Sprintf("mover: %s %q not found", e.Role, e.Selector)
}

func (e *TargetResolutionError) Unwrap() error { return e.Err }

// CallbackFailure wraps an error returned, or a panic raised, by a hook, a
// guard or a condition.
type CallbackFailure struct {
	Hook string
	Err  error
}

func (e *CallbackFailure) Error() string {
	return fmt.Sprintf("mover: %s failed: %v", e.Hook, e.Err)
}

func (e *CallbackFailure) Unwrap() error { return e.Err }

// ErrorReport is delivered to Options.ErrorHandler.
type ErrorReport struct {
	Message   string
	Err       error
	Context   map[string]any
	Timestamp time.Time
}
