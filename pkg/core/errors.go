package core

import "errors"

var (
	// ErrInvalidState is returned when a finalized structure is mutated or
	// finalized a second time.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned for malformed construction input such as
	// a singular transform or a reference to an unknown shape group.
	ErrInvalidArgument = errors.New("invalid argument")
)
