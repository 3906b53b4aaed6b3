/*
Package parking provides the core spot-reservation engine.

PURPOSE:
  This package contains the domain types and algorithms for the parking
  reservation lifecycle: lots, spots, reservations, and the occupancy
  ledger that keeps the lot's occupied-count consistent with spot state.

KEY CONCEPTS IN THIS FILE (types.go):
  - Lot: A physical parking facility with an hourly price and a cached
    occupied-count derived from its spots
  - Spot: An individually reservable space; Available or Occupied
  - Reservation: Binds a vehicle/user to a spot for a time interval;
    Active until released, then Completed and immutable
  - Principal: Typed actor identity (id + role) passed through call
    boundaries instead of an ad-hoc token string

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for prices and costs, never float64
  2. Type Safety: Strong typing for IDs prevents mixing lot/spot/user IDs
  3. Single mutation: A Reservation is written once at creation and
     mutated exactly once at release
  4. Derived state: Lot.Occupied is a cached count, recomputed from spot
     rows after every committed mutation (never incremented blindly)

SEE ALSO:
  - engine.go: Reservation lifecycle (reserve, release, cost preview)
  - ledger.go: Occupancy consistency (occupy, vacate, recount)
  - store.go: Persistence interface with conditional-update primitives
*/
package parking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	LotID         string
	SpotID        string
	ReservationID string
	UserID        string
)

func NewLotID() LotID                 { return LotID(uuid.NewString()) }
func NewSpotID() SpotID               { return SpotID(uuid.NewString()) }
func NewReservationID() ReservationID { return ReservationID(uuid.NewString()) }
func NewUserID() UserID               { return UserID(uuid.NewString()) }

// =============================================================================
// PRINCIPAL - Acting identity
// =============================================================================

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal identifies the actor behind a call. The surrounding
// authorization layer builds one per request; the core never parses
// tokens itself.
type Principal struct {
	UserID UserID
	Role   Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// =============================================================================
// LOT
// =============================================================================

type Lot struct {
	ID            LotID
	Name          string
	PricePerHour  decimal.Decimal
	Address       string
	PinCode       string
	NumberOfSpots int

	// Occupied is a cached count of spots with StatusOccupied. It is
	// recomputed from a fresh count query after every occupy/vacate,
	// so transient drift self-corrects on the next mutation.
	Occupied int

	CreatedAt time.Time
}

// =============================================================================
// SPOT
// =============================================================================

type SpotStatus string

const (
	SpotAvailable SpotStatus = "A"
	SpotOccupied  SpotStatus = "O"
)

type Spot struct {
	ID         SpotID
	LotID      LotID
	SpotNumber int
	Status     SpotStatus
	IsOccupied bool // mirrors Status; kept for reporting queries
	Floor      int
	CreatedAt  time.Time
}

// The reservation currently occupying a spot is NOT stored on the spot.
// It is looked up via Store.ActiveReservationBySpot; the reservation's
// own SpotID is the authoritative link.

// =============================================================================
// RESERVATION
// =============================================================================

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "Active"
	ReservationCompleted ReservationStatus = "Completed"
)

// Reservation binds a vehicle/user to a spot. Invariant:
// Status == Active  <=>  EndedAt == nil  <=>  Cost == nil.
type Reservation struct {
	ID            ReservationID
	SpotID        SpotID
	LotID         LotID
	UserID        UserID
	VehicleNumber string
	StartedAt     time.Time
	EndedAt       *time.Time
	Cost          *decimal.Decimal
	Status        ReservationStatus
	PhoneNumber   string
	CustomerName  string
	Remarks       string
}

func (r *Reservation) Active() bool { return r.Status == ReservationActive }

// =============================================================================
// USER
// =============================================================================

// User is owned by the authentication collaborator. The core reads only
// ID and Flagged; the remaining fields are carried for admin views and
// background jobs.
type User struct {
	ID          UserID
	Username    string
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	Address     string
	Role        Role
	Flagged     bool
	CreatedAt   time.Time
}

// =============================================================================
// ENGINE INPUT/OUTPUT TYPES
// =============================================================================

// ReserveInput carries the caller-supplied fields for a new reservation.
// VehicleNumber is required; the rest is optional contact metadata.
type ReserveInput struct {
	VehicleNumber string
	PhoneNumber   string
	CustomerName  string
	Remarks       string
}

// ReleaseResult reports the outcome of releasing a reservation.
type ReleaseResult struct {
	ReservationID ReservationID
	DurationHours decimal.Decimal
	Cost          decimal.Decimal
	EndedAt       time.Time
}

// Occupancy summarizes a lot's current spot usage.
type Occupancy struct {
	LotID      LotID
	TotalSpots int
	Occupied   int
	Available  int
}

// ReservationSummary is the read-model row for reservation listings.
type ReservationSummary struct {
	ID            ReservationID
	LotName       string
	SpotNumber    int
	VehicleNumber string
	StartedAt     time.Time
	EndedAt       *time.Time
	DurationHours decimal.Decimal
	Cost          *decimal.Decimal
	Status        ReservationStatus
	Remarks       string
}

// hoursBetween returns the fractional hours from start to end.
func hoursBetween(start, end time.Time) decimal.Decimal {
	seconds := decimal.NewFromFloat(end.Sub(start).Seconds())
	return seconds.Div(decimal.NewFromInt(3600))
}
