package state

import "errors"

var (
	// ErrLoopAvoidance is returned when a candidate parent does not have a lower rank than our own
	ErrLoopAvoidance = errors.New("loop avoidance violation")
	// ErrResourceExhausted is returned when a bounded table cannot accept another entry
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrInstanceConflict  = errors.New("conflicting instance id")
	// ErrInvalidDodagConfig is returned for DODAG configurations outside the operable range
	ErrInvalidDodagConfig = errors.New("invalid dodag configuration")
)
