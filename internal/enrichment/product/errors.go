package product

import "errors"

var (
	// ErrItemNotFound is returned when an item cannot be found by the given code.
	ErrItemNotFound = errors.New("item not found")

	// ErrInvalidCode is returned when the provided code cannot be looked up.
	ErrInvalidCode = errors.New("invalid product code")

	// ErrAPIUnavailable is returned when the external API is unavailable.
	ErrAPIUnavailable = errors.New("API unavailable")
)
