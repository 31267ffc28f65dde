// Package common defines the sentinel errors shared across the service and
// repository layers. Callers should match these values with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Authentication errors. ErrInvalidCredentials covers unknown email,
	// wrong password and wrong security answers alike so callers cannot
	// tell which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")

	// Request-level errors.
	ErrValidation = errors.New("validation error")

	// Outbound delivery errors (relay/SMTP boundary).
	ErrDeliveryFailed = errors.New("delivery failed")
)
