package entity

import (
	"errors"
	"fmt"

	"github.com/vlodia/loam/schema"
)

// Specification errors, all raised before any statement executes
var (
	// ErrTypeNotRegistered is returned when an operation names a record
	// type the registry does not know
	ErrTypeNotRegistered = errors.New("type not registered")

	// ErrNoPrimaryKeyColumn is returned when an identity-dependent
	// operation targets a type without a primary-key column
	ErrNoPrimaryKeyColumn = errors.New("type has no primary-key column")

	// ErrMissingPrimaryKey is returned when remove or an update is asked
	// for an entity whose primary-key value is absent
	ErrMissingPrimaryKey = errors.New("entity has no primary-key value")
)

// HookError marks a lifecycle-hook failure so callers can tell it apart
// from specification and execution errors. For before-phase hooks the
// operation was aborted with no statement executed; for after-phase hooks
// the statement has already taken effect.
type HookError struct {
	Kind schema.HookKind
	Err  error
}

// Error implements the error interface
func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook failed: %v", e.Kind, e.Err)
}

// Unwrap returns the hook's own error
func (e *HookError) Unwrap() error {
	return e.Err
}

// IsHookError returns true if err originated in a lifecycle hook
func IsHookError(err error) bool {
	var he *HookError
	return errors.As(err, &he)
}
