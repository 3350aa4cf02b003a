package oms

import "errors"

var (
	// ErrInvalidOrder is returned when Submit or Modify receives a
	// structurally invalid order (spec.md §4.2).
	ErrInvalidOrder = errors.New("oms: invalid order")

	// ErrNotRunning is returned when Submit is called before Start.
	ErrNotRunning = errors.New("oms: not running")
)
