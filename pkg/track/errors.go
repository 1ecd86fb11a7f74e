package track

import "errors"

// Error taxonomy of the tracking core. InvalidTransition and
// ValidationFailed are reported to the immediate caller and never mutate
// state. Unavailable is always recoverable and degrades to polling or
// last-known data. NotFound ends a tracking session with the message
// surfaced verbatim.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("order not found")
	ErrUnavailable       = errors.New("temporarily unavailable")
	ErrValidationFailed  = errors.New("validation failed")
)
