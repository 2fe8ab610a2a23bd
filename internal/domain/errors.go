package domain

import "errors"

// Error kinds surfaced to callers. Lookups on unknown identifiers fail with
// an explicit kind rather than returning defaults.
var (
	// ErrNoActiveModel means a prediction was requested with no configured
	// scoring model. Fatal to that call; never retried silently.
	ErrNoActiveModel = errors.New("no active scoring model configured")

	ErrInstructionNotFound = errors.New("settlement instruction not found")
	ErrMilestoneNotFound   = errors.New("milestone not found")
	ErrPredictionNotFound  = errors.New("prediction not found")
	ErrAlertNotFound       = errors.New("alert not found")
	ErrProfileNotFound     = errors.New("counterparty risk profile not found")
)
