package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks requests rejected before touching storage.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates the targeted task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrInternal wraps storage and transport failures.
	ErrInternal = errors.New("internal error")
)

var (
	ErrNoContent       = fmt.Errorf("%w: no content provided", ErrInvalidInput)
	ErrNothingToUpdate = fmt.Errorf("%w: nothing to update", ErrInvalidInput)
)
