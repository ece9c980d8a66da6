package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("operation not permitted")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("appointment status change not allowed")
)

// ValidationError reports rejected input. The message is safe to show to the
// caller.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
