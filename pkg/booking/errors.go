package booking

import "errors"

// Domain-level error values returned by the booking engine.
var (
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrAlreadyProcessed     = errors.New("already processed")
	ErrNotFound             = errors.New("not found")
	ErrPaymentFailed        = errors.New("payment failed")
	ErrPaymentRequired      = errors.New("checkout payment required")
	ErrSlotUnavailable      = errors.New("slot unavailable")
	ErrStatusConflict       = errors.New("booking status changed concurrently")
	ErrInvalidRequest       = errors.New("invalid booking request")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
