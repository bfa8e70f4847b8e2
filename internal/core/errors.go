package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidTaxRate   = errors.New("tax rate must be between 0 and 100")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyDescription = errors.New("empty description")
	ErrNoLineItems      = errors.New("invoice needs at least one line item")
	ErrInvalidStatus    = errors.New("invalid invoice status")
	ErrInvalidPayment   = errors.New("invalid payment method")
)

// ValidationError reports a user input that fails a precondition. It never
// reaches the persistence layer; handlers turn it into a highlighted field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError wrapping a sentinel.
func Invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

// AsValidation extracts a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
