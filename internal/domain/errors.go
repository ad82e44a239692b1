package domain

import (
	"errors"
	"strings"

	apperrors "github.com/prakyath/spree-commerse/pkg/errors"
)

// Validation error kinds.
var (
	ErrMissingVariant    = errors.New("missing variant")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// FieldError is one failed rule on one field.
type FieldError struct {
	Field   string
	Kind    error
	Message string
}

func (e FieldError) Error() string {
	return e.Field + " " + e.Message
}

// ValidationErrors is the ordered set of rule failures for a record. It
// matches its kinds and apperrors.ErrUnprocessable with errors.Is.
type ValidationErrors []FieldError

// Add appends a failure.
func (v *ValidationErrors) Add(field string, kind error, message string) {
	*v = append(*v, FieldError{Field: field, Kind: kind, Message: message})
}

// Err returns v as an error, or nil when empty.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v)+1)
	for _, fe := range v {
		errs = append(errs, fe.Kind)
	}
	return append(errs, apperrors.ErrUnprocessable)
}

// Fields returns the messages keyed by field. Multiple messages on one field
// are joined with ", ".
func (v ValidationErrors) Fields() map[string]string {
	fields := make(map[string]string, len(v))
	for _, fe := range v {
		if prev, ok := fields[fe.Field]; ok {
			fields[fe.Field] = prev + ", " + fe.Message
			continue
		}
		fields[fe.Field] = fe.Message
	}
	return fields
}
