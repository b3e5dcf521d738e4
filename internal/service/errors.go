package service

import (
	"errors"
	"fmt"
	"strings"

	"podcast-api/internal/validation"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrForbidden       = errors.New("access denied")
	ErrUnauthenticated = errors.New("authentication required")
	ErrBadRequest      = errors.New("bad request")
	ErrUploadFailed    = errors.New("media upload failed")
	ErrConflict        = errors.New("conflict")

	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password. It matches ErrUnauthenticated.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	// ErrWrongPassword is returned by ResetPassword when the old password does
	// not verify. It matches ErrBadRequest.
	ErrWrongPassword = fmt.Errorf("%w: old password does not match", ErrBadRequest)
	// ErrSelfDelete is returned when a user tries to delete their own
	// account. It matches ErrBadRequest.
	ErrSelfDelete = fmt.Errorf("%w: cannot delete own account", ErrBadRequest)
	// ErrNotHost is returned by UserService.Host for an existing user that
	// is not a host. It matches ErrNotFound.
	ErrNotHost = fmt.Errorf("%w: user is not a host", ErrNotFound)
)

// ValidationError carries per-field messages for a rejected payload.
type ValidationError struct {
	Fields validation.Fields
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Fields.Names(), ", ")
}

// invalid returns a *ValidationError when fields is non-empty and nil
// otherwise.
func invalid(fields validation.Fields) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
