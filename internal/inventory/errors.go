package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when no owner identity is available.
	ErrUnauthenticated = errors.New("unauthenticated: owner id required")
	// ErrStore matches every *StoreError.
	ErrStore = errors.New("inventory store error")
	// ErrNotFound is returned by Store.Get for an unknown id.
	ErrNotFound = errors.New("inventory record not found")
)

// StoreError is a persistence failure. It aborts the current merge.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("inventory store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStore) true for any StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func storeError(op string, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err is or wraps a StoreError.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}
