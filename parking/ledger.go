/*
ledger.go - Occupancy ledger: spot status flips + lot count consistency

PURPOSE:
  The ledger is the only code allowed to flip spot occupancy. Each flip
  is paired with a fresh recount of the lot's occupied spots, so the
  invariant

      lot.Occupied == count(spots where status = Occupied)

  holds after every committed mutation.

WHY RECOUNT INSTEAD OF INCREMENT:
  A blind +1/-1 compounds any drift introduced by a lost race or a
  partially applied historical write. The recount resynchronizes the
  cached count with row-level truth on every mutation.

TRANSACTIONALITY:
  The ledger does not open transactions itself. Callers construct it
  over the in-transaction Store view (see Engine), so the status flip,
  the recount, and the reservation write commit or roll back as one
  unit.
*/
package parking

import (
	"context"
	"fmt"
)

// Ledger maintains spot occupancy and the lot's derived occupied-count.
type Ledger struct {
	store Store
}

// NewLedger binds a ledger to a store view, typically the transactional
// view passed to a WithTx callback.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Occupy flips spot Available -> Occupied for the given reservation and
// recomputes the lot's occupied-count. Returns a SpotConflictError
// (wrapping ErrConflict) if a concurrent reservation won the spot first.
func (l *Ledger) Occupy(ctx context.Context, spot *Spot, res *Reservation) error {
	if res.SpotID != spot.ID {
		return fmt.Errorf("%w: reservation %s does not reference spot %s", ErrValidation, res.ID, spot.ID)
	}
	if err := l.store.MarkOccupied(ctx, spot.ID); err != nil {
		return err
	}
	spot.Status = SpotOccupied
	spot.IsOccupied = true
	return l.recount(ctx, spot.LotID)
}

// Vacate flips spot Occupied -> Available and recomputes the lot's
// occupied-count.
func (l *Ledger) Vacate(ctx context.Context, spot *Spot) error {
	if err := l.store.MarkAvailable(ctx, spot.ID); err != nil {
		return err
	}
	spot.Status = SpotAvailable
	spot.IsOccupied = false
	return l.recount(ctx, spot.LotID)
}

func (l *Ledger) recount(ctx context.Context, lotID LotID) error {
	occupied, err := l.store.CountOccupied(ctx, lotID)
	if err != nil {
		return fmt.Errorf("recount lot %s: %w", lotID, err)
	}
	if err := l.store.SetLotOccupied(ctx, lotID, occupied); err != nil {
		return fmt.Errorf("store occupied count for lot %s: %w", lotID, err)
	}
	return nil
}
