package pricing

import (
	"context"
	"errors"
)

var (
	// ErrPricingUnavailable is recorded in a quote's notes when no strategy
	// produced a price. Price never returns it.
	ErrPricingUnavailable = errors.New("pricing unavailable")
	// ErrNoResults means the market search succeeded but matched nothing.
	ErrNoResults = errors.New("no active listings")
	// ErrInsufficientInputs means a strategy lacked the values it needs.
	ErrInsufficientInputs = errors.New("insufficient inputs")
)

func isNoResults(err error) bool {
	return errors.Is(err, ErrNoResults)
}

func isInsufficientInputs(err error) bool {
	return errors.Is(err, ErrInsufficientInputs)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
