/*
store.go - Persistence interface for lots, spots, reservations, users

PURPOSE:
  Defines the interface between the reservation core and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Transactional CRUD plus the conditional-update primitives
  TxStore: Store with WithTx for atomic multi-row operations

CONDITIONAL UPDATES:
  MarkOccupied and MarkAvailable flip a spot's status only from the
  expected prior state ("set O where id=X and status=A"), reporting a
  SpotConflictError when the row was already flipped by a concurrent
  request. This single primitive is what closes the double-booking
  race: two racing reserves cannot both win the same spot.

ATOMICITY:
  Reserve and release each run entirely inside one WithTx call. A
  failure anywhere rolls back the reservation write, the spot flip,
  and the occupied-count update together. Partial occupancy state is
  never persisted.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (WAL mode, affected-row checks)
  - parking/store: In-memory for testing

SEE ALSO:
  - ledger.go: Uses the conditional primitives
  - engine.go: Wraps operations in WithTx
*/
package parking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store handles persistence for the reservation core. Get* methods
// return ErrNotFound for missing IDs; Active* lookups return (nil, nil)
// when no open reservation matches.
type Store interface {
	// Users (owned by the auth collaborator; core reads, admin flags)
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetUserFlagged(ctx context.Context, id UserID, flagged bool) error

	// GetAdminContact returns a contact point (phone) of an admin
	// account, for the flagged-user rejection message.
	GetAdminContact(ctx context.Context) (string, error)

	// Lots
	CreateLot(ctx context.Context, lot *Lot) error
	UpdateLot(ctx context.Context, lot *Lot) error
	DeleteLot(ctx context.Context, id LotID) error // cascades to spots
	GetLot(ctx context.Context, id LotID) (*Lot, error)
	ListLots(ctx context.Context) ([]Lot, error)

	// Spots
	CreateSpot(ctx context.Context, s *Spot) error
	GetSpot(ctx context.Context, id SpotID) (*Spot, error)
	ListSpots(ctx context.Context, lotID LotID) ([]Spot, error)

	// FirstAvailableSpot picks the available spot with the lowest spot
	// number, or (nil, nil) when the lot is full. Deterministic per call.
	FirstAvailableSpot(ctx context.Context, lotID LotID) (*Spot, error)

	// MarkOccupied flips a spot Available -> Occupied. Fails with
	// SpotConflictError if the spot is not currently Available.
	MarkOccupied(ctx context.Context, id SpotID) error

	// MarkAvailable flips a spot Occupied -> Available. Fails with
	// SpotConflictError if the spot is not currently Occupied.
	MarkAvailable(ctx context.Context, id SpotID) error

	// CountOccupied returns the fresh number of occupied spots in a lot.
	CountOccupied(ctx context.Context, lotID LotID) (int, error)

	// SetLotOccupied stores the recomputed occupied-count on the lot.
	SetLotOccupied(ctx context.Context, lotID LotID, occupied int) error

	// Reservations
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)

	// CompleteReservation sets end timestamp, cost, and Completed status
	// in a single conditional write. Fails with ErrAlreadyReleased if the
	// reservation is not Active.
	CompleteReservation(ctx context.Context, id ReservationID, end time.Time, cost decimal.Decimal) error

	ActiveReservationByVehicle(ctx context.Context, vehicleNumber string) (*Reservation, error)
	ActiveReservationBySpot(ctx context.Context, spotID SpotID) (*Reservation, error)
	ActiveReservationsByUser(ctx context.Context, userID UserID) ([]Reservation, error)
	ReservationsByUser(ctx context.Context, userID UserID) ([]Reservation, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error,
	// every write made through the passed Store is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
