package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationErrors aggregates multiple validation failures.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Add records a validation error for a field.
func (v *ValidationErrors) Add(field string, err error) {
	if err == nil {
		return
	}

	var nested *ValidationErrors
	if errors.As(err, &nested) {
		for _, sub := range nested.Errors {
			v.Errors = append(v.Errors, ValidationError{
				Field:   joinField(field, sub.Field),
				Message: sub.Message,
				Cause:   sub.Cause,
			})
		}
		return
	}

	v.Errors = append(v.Errors, ValidationError{
		Field:   field,
		Message: err.Error(),
		Cause:   err,
	})
}

// AddMessage records a validation error with a custom message.
func (v *ValidationErrors) AddMessage(field, message string) {
	if message == "" {
		return
	}
	v.Errors = append(v.Errors, ValidationError{Field: field, Message: message})
}

// Err returns nil if there are no errors, otherwise returns the validation error.
func (v *ValidationErrors) Err() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Error implements error.
func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return "validation failed"
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	var builder strings.Builder
	for i, err := range v.Errors {
		if i > 0 {
			builder.WriteString("; ")
		}
		builder.WriteString(err.Error())
	}

	return builder.String()
}

// Is allows errors.Is to match nested validation errors.
func (v *ValidationErrors) Is(target error) bool {
	if v == nil {
		return false
	}
	for _, err := range v.Errors {
		if err.Cause != nil && errors.Is(err.Cause, target) {
			return true
		}
	}
	return false
}

func joinField(prefix, field string) string {
	switch {
	case prefix == "":
		return field
	case field == "":
		return prefix
	default:
		return prefix + "." + field
	}
}

// Mark validation errors.
var (
	ErrNegativeMark    = errors.New("negative marks are not allowed")
	ErrInvalidMark     = errors.New("mark must be a finite number")
	ErrCellOutOfRange  = errors.New("cell is outside the mark set")
	ErrStateMismatch   = errors.New("edit state does not match its value")
	ErrUnknownEditKind = errors.New("unknown edit kind")
)

// ValidateMark rejects negative and non-finite marks. No mark is valid.
func ValidateMark(c Cell) error {
	v, ok := c.Value()
	if !ok {
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidMark
	}
	if v < 0 {
		return ErrNegativeMark
	}
	return nil
}

// Validate checks a pending edit against the matrix dimensions.
func (e PendingEdit) Validate(d Dims) error {
	validation := &ValidationErrors{}
	if !d.Contains(e.Row, e.Col) {
		validation.Add("cell", ErrCellOutOfRange)
	}
	validation.Add("value", ValidateMark(e.Value))

	v, ok := e.Value.Value()
	switch e.State {
	case EditStateNoMark:
		if ok {
			validation.Add("state", ErrStateMismatch)
		}
	case EditStateZero:
		if !ok || v != 0 {
			validation.Add("state", ErrStateMismatch)
		}
	case EditStateScored:
		if !ok {
			validation.Add("state", ErrStateMismatch)
		}
	default:
		validation.AddMessage("state", fmt.Sprintf("unknown edit state %q", e.State))
	}
	return validation.Err()
}

// Validate checks a single-cell write against the matrix dimensions.
func (e CellEdit) Validate(d Dims) error {
	validation := &ValidationErrors{}
	if !d.Contains(e.Row, e.Col) {
		validation.Add("cell", ErrCellOutOfRange)
	}
	validation.Add("value", ValidateMark(e.Value))
	switch e.Kind {
	case EditKindClear:
		if !e.Value.IsNoMark() {
			validation.Add("edit_kind", ErrStateMismatch)
		}
	case EditKindSet:
		if e.Value.IsNoMark() {
			validation.Add("edit_kind", ErrStateMismatch)
		}
	default:
		validation.Add("edit_kind", ErrUnknownEditKind)
	}
	return validation.Err()
}
