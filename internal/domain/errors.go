package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals an unknown booking or session id.
	ErrNotFound = errors.New("booking not found")

	// ErrConflict signals a create against an id that already exists.
	ErrConflict = errors.New("booking already exists")

	// ErrForbidden signals an actor/role mismatch for the requested
	// operation.
	ErrForbidden = errors.New("actor not permitted")

	// ErrVersionConflict signals a stale expected version; the caller
	// must reread and retry.
	ErrVersionConflict = errors.New("booking version conflict")

	// ErrIneligible signals a session open attempt against a booking
	// that is not in an active status.
	ErrIneligible = errors.New("booking not eligible for a session")

	// ErrAlreadyOpen signals that a session already exists for the
	// booking.
	ErrAlreadyOpen = errors.New("session already open")

	// ErrSessionClosed signals a send or receive against a closed
	// session.
	ErrSessionClosed = errors.New("session closed")
)

// InvalidTransitionError carries the allowed-transition set so callers
// can surface an actionable conflict response.
type InvalidTransitionError struct {
	From       Status
	Transition Transition
	Allowed    []Transition
}

func (e *InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("transition %q not allowed from terminal status %q", e.Transition, e.From)
	}
	names := make([]string, len(e.Allowed))
	for i, t := range e.Allowed {
		names[i] = string(t)
	}
	return fmt.Sprintf("transition %q not allowed from status %q (allowed: %s)",
		e.Transition, e.From, strings.Join(names, ", "))
}
