package triage

import "errors"

var (
	// ErrInvalidReference is returned when an operation names an id that is
	// not in the graph, or an id of the wrong kind.
	ErrInvalidReference = errors.New("triage: invalid reference")

	// ErrValidation is returned when a value breaks a length limit, an enum,
	// or a structural rule of the tree.
	ErrValidation = errors.New("triage: validation failed")

	// ErrAlreadyConnected is returned when an option that already has an
	// outgoing edge is asked to connect again.
	ErrAlreadyConnected = errors.New("triage: option already connected")
)
