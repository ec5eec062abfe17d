package account

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/dashactyl/internal/store"
)

var (
	// ErrInvalidCredential is returned for a wrong password and for an
	// unknown email alike.
	ErrInvalidCredential = errors.New("invalid email or password")

	// ErrUserNotFound wraps store.ErrNotFound.
	ErrUserNotFound = fmt.Errorf("user %w", store.ErrNotFound)
)

// Conflict messages shown to the registering user.
const (
	EmailInUseMessage    = "That email address is already in use."
	UsernameInUseMessage = "That username is already in use."
)

// ConflictError reports which unique field a new account collided on.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Is(target error) bool {
	return target == store.ErrDuplicateKey
}

func conflictFor(field string) *ConflictError {
	if field == "email" {
		return &ConflictError{Field: "email", Message: EmailInUseMessage}
	}
	return &ConflictError{Field: "username", Message: UsernameInUseMessage}
}

// notFound maps the store's missing-row error to ErrUserNotFound.
func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
