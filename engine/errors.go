package engine

import "errors"

var (
	// ErrNotRunning is returned by Enqueue when the engine has not been
	// started.
	ErrNotRunning = errors.New("engine: not running")

	// ErrInvalidConfig is returned when a slippage or fill-rate knob falls
	// outside [0, 1].
	ErrInvalidConfig = errors.New("engine: invalid config")
)
