/*
errors.go - Centralized error taxonomy for the reservation core

PURPOSE:
  All error types in one place. Callers match with errors.Is() against
  the sentinels; structured errors carry context and unwrap to them.

ERROR CATEGORIES:
  1. Client errors  - bad input, missing entities, flagged accounts
  2. Contention     - capacity exhausted, double-booking races
  3. Idempotency    - releasing an already-released reservation

Every error here is recovered at the request boundary and translated to
a structured response. None should crash the process.
*/
package parking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for bad or missing input the client can fix.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity does not exist
	// or is not visible to the acting principal.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a flagged account attempts to reserve.
	ErrForbidden = errors.New("forbidden")

	// ErrNoCapacity is returned when a lot has no available spot.
	ErrNoCapacity = errors.New("no available spots")

	// ErrConflict is returned when a concurrent reservation wins a race,
	// or a vehicle already has an open reservation.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyReleased guards release idempotency: a Completed
	// reservation cannot be released again.
	ErrAlreadyReleased = errors.New("reservation already released")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FlaggedAccountError is returned when a flagged user attempts to
// reserve. The message surfaces an admin contact point so the user
// knows where to appeal.
type FlaggedAccountError struct {
	UserID       UserID
	AdminContact string
}

func (e *FlaggedAccountError) Error() string {
	contact := e.AdminContact
	if contact == "" {
		contact = "N/A"
	}
	return fmt.Sprintf("account is flagged, contact support: %s", contact)
}

func (e *FlaggedAccountError) Unwrap() error { return ErrForbidden }

// VehicleParkedError is returned when the vehicle already has an open
// reservation anywhere in the system.
type VehicleParkedError struct {
	VehicleNumber string
	ReservationID ReservationID
}

func (e *VehicleParkedError) Error() string {
	return fmt.Sprintf("vehicle %s already has an active reservation", e.VehicleNumber)
}

func (e *VehicleParkedError) Unwrap() error { return ErrConflict }

// SpotConflictError is returned when the conditional status flip loses
// a race: the spot was no longer in the expected state.
type SpotConflictError struct {
	SpotID SpotID
	Want   SpotStatus
}

func (e *SpotConflictError) Error() string {
	return fmt.Sprintf("spot %s is no longer %s", e.SpotID, e.Want)
}

func (e *SpotConflictError) Unwrap() error { return ErrConflict }

// LotOccupiedError is returned when deleting a lot that still has
// occupied spots.
type LotOccupiedError struct {
	LotID    LotID
	Occupied int
}

func (e *LotOccupiedError) Error() string {
	return fmt.Sprintf("lot %s has %d occupied spots", e.LotID, e.Occupied)
}

func (e *LotOccupiedError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is attributable to the caller
// rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNoCapacity) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAlreadyReleased)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
