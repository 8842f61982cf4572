package service

import (
	"errors"
	"fmt"

	"braille-voice/internal/repository"
)

var (
	// ErrValidation marks malformed input: empty fields or a bad email shape.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidEmail is a validation error for emails that are not local@domain.tld.
	ErrInvalidEmail = fmt.Errorf("%w: invalid email format", ErrValidation)
	// ErrConflict marks a registration that collides with an existing user.
	ErrConflict = errors.New("conflict")
	// ErrWrongPassword is returned by VerifyCredentials for a known user with a bad password.
	ErrWrongPassword = errors.New("wrong password")
	// ErrInvalidCredentials is the single login rejection, whatever the cause.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrUnauthenticated is returned by Validate for missing, unknown, expired or orphaned tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrStorage matches every durable store failure.
	ErrStorage = repository.ErrStorage
)

func conflict(err error) error {
	return fmt.Errorf("%w: %w", ErrConflict, err)
}

func validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
