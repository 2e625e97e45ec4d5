// Package places validates proximity queries and composes them into ranked,
// distance-annotated results.
package places

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidRadius     = errors.New("invalid radius")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrInvalidPlace      = errors.New("invalid place")
	ErrNotFound          = errors.New("place not found")
)

// ValidationError is a client-correctable input error tied to one field.
type ValidationError struct {
	Field string
	Kind  error
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalid(field string, kind error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// TransientError marks a storage failure (unreachable or timed out backing
// store). Callers may retry; the service does not.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err came from the storage layer.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
