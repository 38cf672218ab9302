package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation rules.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks lookups for entities that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks state transitions that are not allowed from the
	// entity's current status, e.g. cancelling a job that is already firing.
	ErrConflict = errors.New("conflict")
)
