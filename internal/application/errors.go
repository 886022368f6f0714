package application

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrNoCandidate is returned when no qualified host is available at the
	// requested instant.
	ErrNoCandidate = errors.New("application: no candidate host available")
	// ErrSlotUnavailable is returned when every attributable host lost the
	// slot claim race; the guest must re-select a slot.
	ErrSlotUnavailable = errors.New("application: slot no longer available")
	// ErrInvalidToken is returned when no booking holds the presented
	// confirmation token.
	ErrInvalidToken = errors.New("application: invalid confirmation token")
	// ErrTokenExpired is returned when the confirmation window has lapsed.
	ErrTokenExpired = errors.New("application: confirmation token expired")
	// ErrInvalidTransition is returned when a lifecycle operation is applied
	// to a booking whose stored status does not permit it.
	ErrInvalidTransition = errors.New("application: invalid status transition")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
