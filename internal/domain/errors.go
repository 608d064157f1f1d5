package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing credit record.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound signals a user unknown to the lease directory.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyExists signals a duplicate credit record.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation signals malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrStore signals a persistence failure.
	ErrStore = errors.New("store error")
	// ErrHook signals a failure inside a rule resolver or post-tick hook.
	ErrHook = errors.New("hook error")
	// ErrDisabled signals that the credits feature is switched off.
	ErrDisabled = errors.New("credits disabled")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StoreError wraps a persistence failure with the operation and record key.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrStore.Error(), e.Op, e.Key, e.Err)
}

// Unwrap exposes both ErrStore and the underlying cause to errors.Is.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// HookError wraps a failure raised by a user supplied hook.
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrHook.Error(), e.Hook, e.Err)
}

// Unwrap exposes both ErrHook and the underlying cause to errors.Is.
func (e *HookError) Unwrap() []error { return []error{ErrHook, e.Err} }
