package pricing

import "errors"

var (
	// ErrInvalidParameters is returned when OptionParameters fails its
	// bounds checks (spec.md §4.1).
	ErrInvalidParameters = errors.New("pricing: invalid option parameters")

	// ErrNumericError is returned when an intermediate quantity is
	// non-finite or an iterative solve fails to converge.
	ErrNumericError = errors.New("pricing: numeric error")
)
