package domain

import "errors"

// Engine error taxonomy. Classification and correlation detection are total
// functions and never return these; everything else fails closed.
var (
	// ErrNotFound indicates a missing catalog entry or record.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidStateTransition indicates an attempt to mutate a closed risk
	// entity or to perform a transition the state machine does not allow.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrUnknownFraudType indicates an ROI calculation on an unrecognized
	// fraud type. The calculator fails closed rather than silently defaulting.
	ErrUnknownFraudType = errors.New("unknown fraud type")

	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrApprovalRequired indicates a high-severity entity cannot leave the
	// detected state without an explicit approval record.
	ErrApprovalRequired = errors.New("approval required")
)
