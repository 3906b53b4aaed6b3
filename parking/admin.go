/*
admin.go - Lot administration and account flagging

PURPOSE:
  Administrator operations around the reservation core: lot CRUD with
  automatic spot provisioning, and flagging accounts out of new
  reservations. All operations require an admin principal.

LOT DELETION:
  A lot cannot be deleted while any of its spots is occupied; the
  store cascades spot deletion once the lot row goes.

CACHING:
  Lot mutations evict the same listing/detail cache entries as the
  reservation lifecycle does.
*/
package parking

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Admin exposes administrator operations. Methods return ErrForbidden
// for non-admin principals.
type Admin struct {
	store TxStore
	cache Cache
	log   *zap.SugaredLogger
}

func NewAdmin(store TxStore, cache Cache, log *zap.SugaredLogger) *Admin {
	if cache == nil {
		cache = NopCache{}
	}
	return &Admin{store: store, cache: cache, log: log}
}

// LotInput carries the admin-supplied fields for creating or updating
// a lot.
type LotInput struct {
	Name          string
	PricePerHour  string
	Address       string
	PinCode       string
	NumberOfSpots int
	Floor         int
}

func (a *Admin) requireAdmin(p Principal) error {
	if !p.IsAdmin() {
		return fmt.Errorf("admin access required: %w", ErrForbidden)
	}
	return nil
}

// CreateLot creates a lot and provisions spots numbered 1..NumberOfSpots,
// all Available, in one transaction.
func (a *Admin) CreateLot(ctx context.Context, p Principal, in LotInput) (*Lot, error) {
	if err := a.requireAdmin(p); err != nil {
		return nil, err
	}
	price, err := parsePrice(in.PricePerHour)
	if err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: lot name is required", ErrValidation)
	}
	if in.NumberOfSpots <= 0 {
		return nil, fmt.Errorf("%w: number of spots must be positive", ErrValidation)
	}
	floor := in.Floor
	if floor == 0 {
		floor = 1
	}

	lot := &Lot{
		ID:            NewLotID(),
		Name:          in.Name,
		PricePerHour:  price,
		Address:       in.Address,
		PinCode:       in.PinCode,
		NumberOfSpots: in.NumberOfSpots,
	}
	err = a.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateLot(ctx, lot); err != nil {
			return fmt.Errorf("create lot: %w", err)
		}
		for n := 1; n <= in.NumberOfSpots; n++ {
			spot := &Spot{
				ID:         NewSpotID(),
				LotID:      lot.ID,
				SpotNumber: n,
				Status:     SpotAvailable,
				Floor:      floor,
			}
			if err := tx.CreateSpot(ctx, spot); err != nil {
				return fmt.Errorf("create spot %d: %w", n, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.invalidate(ctx, lot.ID)
	a.log.Infow("lot created", "lot_id", lot.ID, "spots", in.NumberOfSpots)
	return lot, nil
}

// UpdateLot changes a lot's descriptive fields and price. Spot count is
// fixed at creation; resizing a live lot is not supported.
func (a *Admin) UpdateLot(ctx context.Context, p Principal, id LotID, in LotInput) (*Lot, error) {
	if err := a.requireAdmin(p); err != nil {
		return nil, err
	}
	lot, err := a.store.GetLot(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != "" {
		lot.Name = in.Name
	}
	if in.PricePerHour != "" {
		price, err := parsePrice(in.PricePerHour)
		if err != nil {
			return nil, err
		}
		lot.PricePerHour = price
	}
	if in.Address != "" {
		lot.Address = in.Address
	}
	if in.PinCode != "" {
		lot.PinCode = in.PinCode
	}
	if err := a.store.UpdateLot(ctx, lot); err != nil {
		return nil, err
	}

	a.invalidate(ctx, id)
	return lot, nil
}

// DeleteLot removes a lot and its spots. Fails with LotOccupiedError
// while any spot is occupied.
func (a *Admin) DeleteLot(ctx context.Context, p Principal, id LotID) error {
	if err := a.requireAdmin(p); err != nil {
		return err
	}
	err := a.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetLot(ctx, id); err != nil {
			return err
		}
		occupied, err := tx.CountOccupied(ctx, id)
		if err != nil {
			return err
		}
		if occupied > 0 {
			return &LotOccupiedError{LotID: id, Occupied: occupied}
		}
		return tx.DeleteLot(ctx, id)
	})
	if err != nil {
		return err
	}

	a.invalidate(ctx, id)
	a.log.Infow("lot deleted", "lot_id", id)
	return nil
}

// ListUsers returns all user accounts for admin review.
func (a *Admin) ListUsers(ctx context.Context, p Principal) ([]User, error) {
	if err := a.requireAdmin(p); err != nil {
		return nil, err
	}
	return a.store.ListUsers(ctx)
}

// FlagUser bars an account from making new reservations. Existing
// reservations are unaffected and can still be released.
func (a *Admin) FlagUser(ctx context.Context, p Principal, id UserID) error {
	return a.setFlagged(ctx, p, id, true)
}

// UnflagUser restores an account's ability to reserve.
func (a *Admin) UnflagUser(ctx context.Context, p Principal, id UserID) error {
	return a.setFlagged(ctx, p, id, false)
}

func (a *Admin) setFlagged(ctx context.Context, p Principal, id UserID, flagged bool) error {
	if err := a.requireAdmin(p); err != nil {
		return err
	}
	if _, err := a.store.GetUser(ctx, id); err != nil {
		return err
	}
	if err := a.store.SetUserFlagged(ctx, id, flagged); err != nil {
		return err
	}
	a.log.Infow("user flag changed", "user_id", id, "flagged", flagged)
	return nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid hourly price %q", ErrValidation, s)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: hourly price must be non-negative", ErrValidation)
	}
	return price, nil
}

func (a *Admin) invalidate(ctx context.Context, lotID LotID) {
	if err := a.cache.Delete(ctx, LotListingKey, LotDetailKey(lotID)); err != nil {
		a.log.Warnw("cache eviction failed", "lot_id", lotID, "error", err)
	}
}
