package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrDuplicateAccount   = errors.New("auth: account already exists")
	ErrAccountNotFound    = errors.New("auth: account not found")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrIncorrectPassword  = errors.New("auth: incorrect current password")
	ErrPasswordMismatch   = errors.New("auth: password confirmation mismatch")
	ErrInvalidAccountID   = errors.New("auth: invalid account id")
	ErrConflict           = errors.New("auth: unique constraint violated")
	ErrMalformedHash      = errors.New("auth: malformed password hash")
	ErrUnexpected         = errors.New("auth: unexpected failure")
)

// Validation fields.
const (
	FieldFirstName       = "first_name"
	FieldLastName        = "last_name"
	FieldEmail           = "email"
	FieldDateOfBirth     = "date_of_birth"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
	FieldRole            = "role"
)

// ValidationError reports the first rule an input violated. Reason is shown to end users verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("auth: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func unexpected(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnexpected, op, err)
}

const genericMessage = "Something went wrong"

// UserMessage renders err as the short message shown to end users.
// Anything not raised deliberately by the lifecycle manager collapses to a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrUnexpected):
		return genericMessage
	case errors.As(err, &verr):
		return verr.Reason
	case errors.Is(err, ErrDuplicateAccount):
		return "An account with this email already exists"
	case errors.Is(err, ErrAccountNotFound):
		return "Account not found"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials provided"
	case errors.Is(err, ErrIncorrectPassword):
		return "Incorrect current password provided, please try again"
	case errors.Is(err, ErrPasswordMismatch):
		return "New password is not the same as the password confirmation"
	case errors.Is(err, ErrInvalidAccountID):
		return "Invalid User ID"
	default:
		return genericMessage
	}
}
