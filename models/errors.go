package models

import "errors"

// ValidationError marks input problems that handlers report as 400.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string { return e.Message }

func NewValidationError(msg string) error {
	return ValidationError{Message: msg}
}

func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
