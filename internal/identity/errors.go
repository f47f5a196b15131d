package identity

import "errors"

var (
	// ErrNotFound is returned when no identity matches the contact address.
	ErrNotFound = errors.New("identity not found")
	// ErrExists is returned by Create when the contact address is taken.
	ErrExists = errors.New("identity already exists")
)
