package common

import (
	"fmt"
	"strings"
)

// FieldError represents a single validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Validator collects field errors in evaluation order. Rules are evaluated
// independently; nothing short-circuits, so the caller gets every violation
// at once.
type Validator struct {
	errors []FieldError
}

func NewValidator() *Validator {
	return &Validator{errors: make([]FieldError, 0)}
}

// Check records a failure for field unless ok is true.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.errors = append(v.errors, FieldError{Field: field, Message: message})
	}
	return v
}

// Checkf records a formatted failure for field unless ok is true.
func (v *Validator) Checkf(ok bool, field, format string, args ...any) *Validator {
	return v.Check(ok, field, fmt.Sprintf(format, args...))
}

// Required fails when value is empty after trimming.
func (v *Validator) Required(field, value string) *Validator {
	return v.Check(strings.TrimSpace(value) != "", field, "is required")
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Messages returns the human-readable error list in evaluation order.
func (v *Validator) Messages() []string {
	out := make([]string, len(v.errors))
	for i, e := range v.errors {
		out[i] = e.Error()
	}
	return out
}

// Err returns the collected errors as a single *AppError, or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return ValidationError(v.Messages())
}
