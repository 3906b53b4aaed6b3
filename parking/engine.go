/*
engine.go - Reservation lifecycle engine

PURPOSE:
  The state machine governing reservation creation, active duration,
  cost computation, and release. The only transition is
  Active -> Completed; a Completed reservation is immutable.

RESERVE PRECONDITIONS (checked in order, first failure wins):
  1. Acting user must not be flagged          -> ErrForbidden
  2. Vehicle number must be present           -> ErrValidation
  3. Lot must exist                           -> ErrNotFound
  4. Lot must have an available spot          -> ErrNoCapacity
  5. Vehicle must not be parked anywhere else -> ErrConflict

COST:
  cost = round(duration_hours * lot.price_per_hour, 2), with the wall
  clock captured exactly once per release so a charge never changes
  between reads. PreviewCost recomputes on every call and is never
  persisted.

CONCURRENCY:
  Each call runs inside one store transaction. Racing reserves on the
  same lot are serialized by the conditional spot flip: the loser sees
  ErrNoCapacity or ErrConflict, never a corrupted count.

CACHING:
  Successful occupy/vacate evicts the lot's listing and detail cache
  entries before returning. Eviction failures are logged, not surfaced;
  the TTL bounds any resulting staleness.

SEE ALSO:
  - ledger.go: Occupancy flips and recounts
  - store.go:  Transaction and conditional-update contracts
  - admin.go:  Lot administration and account flagging
*/
package parking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine exposes the reservation lifecycle to the surrounding HTTP and
// authorization layer.
type Engine struct {
	store TxStore
	cache Cache
	log   *zap.SugaredLogger

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewEngine creates an engine over the given store and cache.
func NewEngine(store TxStore, cache Cache, log *zap.SugaredLogger) *Engine {
	if cache == nil {
		cache = NopCache{}
	}
	return &Engine{
		store: store,
		cache: cache,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's clock. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// =============================================================================
// RESERVE
// =============================================================================

// Reserve creates an Active reservation on the first available spot of
// the lot and occupies that spot, atomically.
func (e *Engine) Reserve(ctx context.Context, p Principal, lotID LotID, in ReserveInput) (*Reservation, error) {
	var created *Reservation

	err := e.store.WithTx(ctx, func(tx Store) error {
		user, err := tx.GetUser(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("load user %s: %w", p.UserID, err)
		}
		if user.Flagged {
			contact, _ := tx.GetAdminContact(ctx)
			return &FlaggedAccountError{UserID: user.ID, AdminContact: contact}
		}

		vehicle := strings.ToUpper(strings.TrimSpace(in.VehicleNumber))
		if vehicle == "" {
			return fmt.Errorf("%w: vehicle number is required", ErrValidation)
		}

		if _, err := tx.GetLot(ctx, lotID); err != nil {
			return fmt.Errorf("load lot %s: %w", lotID, err)
		}

		spot, err := tx.FirstAvailableSpot(ctx, lotID)
		if err != nil {
			return fmt.Errorf("find spot in lot %s: %w", lotID, err)
		}
		if spot == nil {
			return fmt.Errorf("lot %s: %w", lotID, ErrNoCapacity)
		}

		open, err := tx.ActiveReservationByVehicle(ctx, vehicle)
		if err != nil {
			return fmt.Errorf("check vehicle %s: %w", vehicle, err)
		}
		if open != nil {
			return &VehicleParkedError{VehicleNumber: vehicle, ReservationID: open.ID}
		}

		r := &Reservation{
			ID:            NewReservationID(),
			SpotID:        spot.ID,
			LotID:         lotID,
			UserID:        p.UserID,
			VehicleNumber: vehicle,
			StartedAt:     e.now(),
			Status:        ReservationActive,
			PhoneNumber:   in.PhoneNumber,
			CustomerName:  in.CustomerName,
			Remarks:       in.Remarks,
		}
		if err := tx.CreateReservation(ctx, r); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		if err := NewLedger(tx).Occupy(ctx, spot, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.invalidateLot(ctx, lotID)
	e.log.Infow("spot reserved",
		"reservation_id", created.ID,
		"lot_id", lotID,
		"spot_id", created.SpotID,
		"vehicle", created.VehicleNumber,
	)
	return created, nil
}

// =============================================================================
// RELEASE
// =============================================================================

// Release completes an Active reservation owned by the principal,
// computes its cost, and vacates the spot, atomically.
func (e *Engine) Release(ctx context.Context, p Principal, id ReservationID) (*ReleaseResult, error) {
	var (
		result *ReleaseResult
		lotID  LotID
	)

	err := e.store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetReservation(ctx, id)
		if err != nil {
			return fmt.Errorf("load reservation %s: %w", id, err)
		}
		// Ownership failures read the same as absence: callers cannot
		// probe for other users' reservation IDs.
		if r.UserID != p.UserID {
			return fmt.Errorf("reservation %s: %w", id, ErrNotFound)
		}
		if !r.Active() {
			return fmt.Errorf("reservation %s: %w", id, ErrAlreadyReleased)
		}

		lot, err := tx.GetLot(ctx, r.LotID)
		if err != nil {
			return fmt.Errorf("load lot %s: %w", r.LotID, err)
		}

		// Capture the clock once; the stored cost never changes afterwards.
		end := e.now()
		hours := hoursBetween(r.StartedAt, end)
		cost := hours.Mul(lot.PricePerHour).Round(2)

		if err := tx.CompleteReservation(ctx, r.ID, end, cost); err != nil {
			return err
		}

		spot, err := tx.GetSpot(ctx, r.SpotID)
		if err != nil {
			return fmt.Errorf("load spot %s: %w", r.SpotID, err)
		}
		if err := NewLedger(tx).Vacate(ctx, spot); err != nil {
			return err
		}

		result = &ReleaseResult{
			ReservationID: r.ID,
			DurationHours: hours.Round(2),
			Cost:          cost,
			EndedAt:       end,
		}
		lotID = r.LotID
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.invalidateLot(ctx, lotID)
	e.log.Infow("spot released",
		"reservation_id", result.ReservationID,
		"lot_id", lotID,
		"cost", result.Cost.String(),
	)
	return result, nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// PreviewCost computes the running charge of an Active reservation.
// Purely derived: recomputed on every call, never persisted, and will
// differ between calls.
func (e *Engine) PreviewCost(ctx context.Context, p Principal, id ReservationID) (decimal.Decimal, error) {
	r, err := e.store.GetReservation(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if r.UserID != p.UserID {
		return decimal.Zero, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	if !r.Active() {
		return *r.Cost, nil
	}
	lot, err := e.store.GetLot(ctx, r.LotID)
	if err != nil {
		return decimal.Zero, err
	}
	return hoursBetween(r.StartedAt, e.now()).Mul(lot.PricePerHour).Round(2), nil
}

// LotOccupancy reports a lot's spot usage from committed state.
func (e *Engine) LotOccupancy(ctx context.Context, lotID LotID) (*Occupancy, error) {
	lot, err := e.store.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	occupied, err := e.store.CountOccupied(ctx, lotID)
	if err != nil {
		return nil, err
	}
	return &Occupancy{
		LotID:      lot.ID,
		TotalSpots: lot.NumberOfSpots,
		Occupied:   occupied,
		Available:  lot.NumberOfSpots - occupied,
	}, nil
}

// ActiveReservations lists the user's open reservations with their
// running durations.
func (e *Engine) ActiveReservations(ctx context.Context, userID UserID) ([]ReservationSummary, error) {
	open, err := e.store.ActiveReservationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.summarize(ctx, open)
}

// History lists all of the user's reservations, newest first.
func (e *Engine) History(ctx context.Context, userID UserID) ([]ReservationSummary, error) {
	all, err := e.store.ReservationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.summarize(ctx, all)
}

func (e *Engine) summarize(ctx context.Context, rs []Reservation) ([]ReservationSummary, error) {
	summaries := make([]ReservationSummary, 0, len(rs))
	for i := range rs {
		r := &rs[i]

		lotName := "Unknown"
		if lot, err := e.store.GetLot(ctx, r.LotID); err == nil {
			lotName = lot.Name
		}
		spotNumber := 0
		if spot, err := e.store.GetSpot(ctx, r.SpotID); err == nil {
			spotNumber = spot.SpotNumber
		}

		end := e.now()
		if r.EndedAt != nil {
			end = *r.EndedAt
		}

		summaries = append(summaries, ReservationSummary{
			ID:            r.ID,
			LotName:       lotName,
			SpotNumber:    spotNumber,
			VehicleNumber: r.VehicleNumber,
			StartedAt:     r.StartedAt,
			EndedAt:       r.EndedAt,
			DurationHours: hoursBetween(r.StartedAt, end).Round(2),
			Cost:          r.Cost,
			Status:        r.Status,
			Remarks:       r.Remarks,
		})
	}
	return summaries, nil
}

// =============================================================================
// CACHE INVALIDATION
// =============================================================================

// invalidateLot evicts the lot's cached listing and detail entries.
// Runs synchronously after commit, before the request returns.
func (e *Engine) invalidateLot(ctx context.Context, lotID LotID) {
	if err := e.cache.Delete(ctx, LotListingKey, LotDetailKey(lotID)); err != nil {
		// Stale reads are bounded by the cache TTL; eviction failure
		// must not fail the committed reservation.
		e.log.Warnw("cache eviction failed", "lot_id", lotID, "error", err)
	}
}

// ReservationForUser loads a single reservation if the principal owns
// it, for detail views.
func (e *Engine) ReservationForUser(ctx context.Context, p Principal, id ReservationID) (*Reservation, error) {
	r, err := e.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != p.UserID && !p.IsAdmin() {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	return r, nil
}
