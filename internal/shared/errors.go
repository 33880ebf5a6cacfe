package shared

import "errors"

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid indicates input that fails a business rule.
	ErrInvalid = errors.New("invalid input")
	// ErrConflict indicates a uniqueness violation, e.g. a duplicate invoice number.
	ErrConflict = errors.New("conflict")
)
