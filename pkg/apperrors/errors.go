package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrPoolCapacity   = errors.New("pool at capacity")
	ErrPoolEmpty      = errors.New("pool has no handles")
	ErrPoolNotFound   = errors.New("pool not found")
	ErrInvalidHandle  = errors.New("invalid handle")
	ErrUnknownDriver  = errors.New("unknown driver")
	ErrInvalidDriver  = errors.New("invalid driver reference")
	ErrNotImplemented = errors.New("not implemented")
)

// ConversionError reports a value that could not be coerced by a typed
// converter. The default converters never produce one.
type ConversionError struct {
	Tag   string
	Value any
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("convert %v as %s: %v", e.Value, e.Tag, e.Err)
	}
	return fmt.Sprintf("convert %v as %s", e.Value, e.Tag)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// NewConversionError wraps a parse failure with the tag and offending value.
func NewConversionError(tag string, value any, err error) *ConversionError {
	return &ConversionError{Tag: tag, Value: value, Err: err}
}
