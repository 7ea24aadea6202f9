package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNoSession         = errors.New("no active session")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`

	cause error
}

// ValidationError collects every invalid field of an input.
// errors.Is(err, ErrValidation) holds for it.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Is matches the sentinel behind any field, so a bad amount is both
// ErrValidation and ErrInvalidAmount.
func (e *ValidationError) Is(target error) bool {
	for _, fe := range e.Errors {
		if fe.cause != nil && errors.Is(fe.cause, target) {
			return true
		}
	}
	return false
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// WrapFieldError builds a ValidationError for a field whose check failed
// with err, keeping err matchable through errors.Is.
func WrapFieldError(field string, err error) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: err.Error(), cause: err}}}
}

// validator accumulates field errors while checking an input.
type validator struct {
	errs []FieldError
}

func (v *validator) add(field, message string) {
	v.errs = append(v.errs, FieldError{Field: field, Message: message})
}

func (v *validator) addErr(field string, err error) {
	v.errs = append(v.errs, FieldError{Field: field, Message: err.Error(), cause: err})
}

func (v *validator) check(ok bool, field, message string) {
	if !ok {
		v.add(field, message)
	}
}

func (v *validator) err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errs}
}

// TransitionError reports a request status change outside the allowed table.
type TransitionError struct {
	From RequestStatus
	To   RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
