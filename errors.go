package veloxdb

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when no object matches an id and its access filter.
	// An object hidden by its ACL is indistinguishable from an absent one.
	ErrNotFound = errors.New("veloxdb: object not found")

	// ErrSchema is returned when a class or field is absent from the loaded schema.
	ErrSchema = errors.New("veloxdb: schema error")

	// ErrHook is returned when a registered hook callback fails.
	ErrHook = errors.New("veloxdb: hook failed")

	// ErrAdapter is returned when the storage adapter fails.
	ErrAdapter = errors.New("veloxdb: storage adapter failed")
)

// NotFoundError represents an error when an object is not found.
type NotFoundError struct {
	class string
	id    string // Optional: the id that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != "" {
		return fmt.Sprintf("veloxdb: %s not found (id=%s)", e.class, e.id)
	}
	return fmt.Sprintf("veloxdb: %s not found", e.class)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Class returns the class name.
func (e *NotFoundError) Class() string {
	return e.class
}

// ID returns the id that was searched for, if available.
func (e *NotFoundError) ID() string {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given class.
func NewNotFoundError(class string) *NotFoundError {
	return &NotFoundError{class: class}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the id that was searched for.
func NewNotFoundErrorWithID(class, id string) *NotFoundError {
	return &NotFoundError{class: class, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// SchemaError reports a class or field missing from the schema, or data that
// does not fit the declared shape.
type SchemaError struct {
	Class string
	Field string // Optional
	Msg   string
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("veloxdb: schema: %s.%s: %s", e.Class, e.Field, e.Msg)
	case e.Class != "":
		return fmt.Sprintf("veloxdb: schema: %s: %s", e.Class, e.Msg)
	}
	return "veloxdb: schema: " + e.Msg
}

// Is reports whether the target error matches ErrSchema.
func (e *SchemaError) Is(err error) bool {
	return err == ErrSchema
}

// NewSchemaError returns a new SchemaError.
func NewSchemaError(class, field, msg string) *SchemaError {
	return &SchemaError{Class: class, Field: field, Msg: msg}
}

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaError
	return errors.As(err, &e)
}

// AdapterError wraps a storage failure with the class and primitive that failed.
type AdapterError struct {
	Class      string
	Op         string // e.g. "create", "update", "getObjects"
	Constraint bool   // set when the store reported a constraint violation
	Err        error
}

// Error returns the error string.
func (e *AdapterError) Error() string {
	if e.Constraint {
		return fmt.Sprintf("veloxdb: %s %s: constraint failed: %v", e.Op, e.Class, e.Err)
	}
	return fmt.Sprintf("veloxdb: %s %s: %v", e.Op, e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrAdapter.
func (e *AdapterError) Is(err error) bool {
	return err == ErrAdapter
}

// NewAdapterError returns a new AdapterError. A nil err yields nil, and an
// error that already is a NotFoundError or AdapterError is returned unchanged.
func NewAdapterError(class, op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		nf *NotFoundError
		ae *AdapterError
	)
	if errors.As(err, &nf) || errors.As(err, &ae) {
		return err
	}
	return &AdapterError{Class: class, Op: op, Err: err}
}

// NewConstraintError returns an AdapterError flagged as a constraint violation.
func NewConstraintError(class, op string, err error) *AdapterError {
	return &AdapterError{Class: class, Op: op, Err: err, Constraint: true}
}

// IsAdapterError returns true if the error is an AdapterError.
func IsAdapterError(err error) bool {
	if err == nil {
		return false
	}
	var e *AdapterError
	return errors.As(err, &e)
}

// IsConstraintError returns true if the error is an AdapterError caused by a
// constraint violation.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *AdapterError
	return errors.As(err, &e) && e.Constraint
}

// HookError wraps an error returned by a hook callback.
type HookError struct {
	Class string
	Phase string
	Err   error
}

// Error returns the error string.
func (e *HookError) Error() string {
	return fmt.Sprintf("veloxdb: %s hook on %s: %v", e.Phase, e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrHook.
func (e *HookError) Is(err error) bool {
	return err == ErrHook
}

// NewHookError returns a new HookError. Errors that already are HookErrors
// (raised by a nested operation) are returned unchanged.
func NewHookError(class, phase string, err error) error {
	var he *HookError
	if errors.As(err, &he) {
		return err
	}
	return &HookError{Class: class, Phase: phase, Err: err}
}

// IsHookError returns true if the error is a HookError.
func IsHookError(err error) bool {
	if err == nil {
		return false
	}
	var e *HookError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for field values.
type ValidationError struct {
	Name string // Field name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("veloxdb: validator failed for field %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during a batch operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "veloxdb: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("veloxdb: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// PrivacyError represents a class-level permission denial.
type PrivacyError struct {
	Class string
	Op    string
	Rule  string // Rule that denied the operation
}

// Error returns the error string.
func (e *PrivacyError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("veloxdb: permission denied: %s on %s (rule: %s)", e.Op, e.Class, e.Rule)
	}
	return fmt.Sprintf("veloxdb: permission denied: %s on %s", e.Op, e.Class)
}

// NewPrivacyError returns a new PrivacyError.
func NewPrivacyError(class, op, rule string) *PrivacyError {
	return &PrivacyError{Class: class, Op: op, Rule: rule}
}

// IsPrivacyError returns true if the error is a PrivacyError.
func IsPrivacyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PrivacyError
	return errors.As(err, &e)
}
