package risk

import "errors"

var (
	// ErrInvalidLimits is returned by SetRiskLimits when a limit is
	// non-positive.
	ErrInvalidLimits = errors.New("risk: invalid risk limits")
)
