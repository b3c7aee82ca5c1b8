package domain

import "errors"

var (
	// ErrInvalidInput marks input-contract violations: invalid rectangles,
	// non-positive tile sizes, unsupported scales. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIDAlreadyAssigned is returned when a surrogate id is assigned over a
	// different, already assigned id.
	ErrIDAlreadyAssigned = errors.New("surrogate id already assigned")

	// ErrNoTypeDescriptor is returned when a series is requested for a sensor
	// that carries no module/type descriptor.
	ErrNoTypeDescriptor = errors.New("sensor has no type descriptor")

	// ErrUnknownSensor is returned when a sensor lookup by original id fails.
	ErrUnknownSensor = errors.New("unknown sensor")
)
