package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlot/parking-engine/parking"
)

// memoryView is the unlocked view handed to WithTx callbacks. The
// parent's mutex is already held, so methods touch the maps directly.
type memoryView struct {
	m *Memory
}

var _ parking.Store = (*memoryView)(nil)

// =============================================================================
// USERS
// =============================================================================

func (v *memoryView) CreateUser(_ context.Context, u *parking.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	v.m.users[u.ID] = *u
	return nil
}

func (v *memoryView) GetUser(_ context.Context, id parking.UserID) (*parking.User, error) {
	u, ok := v.m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, parking.ErrNotFound)
	}
	return &u, nil
}

func (v *memoryView) ListUsers(_ context.Context) ([]parking.User, error) {
	users := make([]parking.User, 0, len(v.m.users))
	for _, u := range v.m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (v *memoryView) SetUserFlagged(_ context.Context, id parking.UserID, flagged bool) error {
	u, ok := v.m.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, parking.ErrNotFound)
	}
	u.Flagged = flagged
	v.m.users[id] = u
	return nil
}

func (v *memoryView) GetAdminContact(_ context.Context) (string, error) {
	var admins []parking.User
	for _, u := range v.m.users {
		if u.Role == parking.RoleAdmin {
			admins = append(admins, u)
		}
	}
	if len(admins) == 0 {
		return "", nil
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].Username < admins[j].Username })
	return admins[0].PhoneNumber, nil
}

// =============================================================================
// LOTS
// =============================================================================

func (v *memoryView) CreateLot(_ context.Context, lot *parking.Lot) error {
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}
	v.m.lots[lot.ID] = *lot
	return nil
}

func (v *memoryView) UpdateLot(_ context.Context, lot *parking.Lot) error {
	if _, ok := v.m.lots[lot.ID]; !ok {
		return fmt.Errorf("lot %s: %w", lot.ID, parking.ErrNotFound)
	}
	v.m.lots[lot.ID] = *lot
	return nil
}

func (v *memoryView) DeleteLot(_ context.Context, id parking.LotID) error {
	if _, ok := v.m.lots[id]; !ok {
		return fmt.Errorf("lot %s: %w", id, parking.ErrNotFound)
	}
	delete(v.m.lots, id)
	for spotID, s := range v.m.spots {
		if s.LotID == id {
			delete(v.m.spots, spotID)
		}
	}
	return nil
}

func (v *memoryView) GetLot(_ context.Context, id parking.LotID) (*parking.Lot, error) {
	lot, ok := v.m.lots[id]
	if !ok {
		return nil, fmt.Errorf("lot %s: %w", id, parking.ErrNotFound)
	}
	return &lot, nil
}

func (v *memoryView) ListLots(_ context.Context) ([]parking.Lot, error) {
	lots := make([]parking.Lot, 0, len(v.m.lots))
	for _, lot := range v.m.lots {
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].Name < lots[j].Name })
	return lots, nil
}

// =============================================================================
// SPOTS
// =============================================================================

func (v *memoryView) CreateSpot(_ context.Context, s *parking.Spot) error {
	for _, existing := range v.m.spots {
		if existing.LotID == s.LotID && existing.SpotNumber == s.SpotNumber {
			return fmt.Errorf("spot %d already exists in lot %s: %w", s.SpotNumber, s.LotID, parking.ErrConflict)
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	v.m.spots[s.ID] = *s
	return nil
}

func (v *memoryView) GetSpot(_ context.Context, id parking.SpotID) (*parking.Spot, error) {
	s, ok := v.m.spots[id]
	if !ok {
		return nil, fmt.Errorf("spot %s: %w", id, parking.ErrNotFound)
	}
	return &s, nil
}

func (v *memoryView) ListSpots(_ context.Context, lotID parking.LotID) ([]parking.Spot, error) {
	var spots []parking.Spot
	for _, s := range v.m.spots {
		if s.LotID == lotID {
			spots = append(spots, s)
		}
	}
	sort.Slice(spots, func(i, j int) bool { return spots[i].SpotNumber < spots[j].SpotNumber })
	return spots, nil
}

func (v *memoryView) FirstAvailableSpot(_ context.Context, lotID parking.LotID) (*parking.Spot, error) {
	var best *parking.Spot
	for id := range v.m.spots {
		s := v.m.spots[id]
		if s.LotID != lotID || s.Status != parking.SpotAvailable {
			continue
		}
		if best == nil || s.SpotNumber < best.SpotNumber {
			best = &s
		}
	}
	return best, nil
}

func (v *memoryView) MarkOccupied(_ context.Context, id parking.SpotID) error {
	s, ok := v.m.spots[id]
	if !ok {
		return fmt.Errorf("spot %s: %w", id, parking.ErrNotFound)
	}
	if s.Status != parking.SpotAvailable {
		return &parking.SpotConflictError{SpotID: id, Want: parking.SpotAvailable}
	}
	s.Status = parking.SpotOccupied
	s.IsOccupied = true
	v.m.spots[id] = s
	return nil
}

func (v *memoryView) MarkAvailable(_ context.Context, id parking.SpotID) error {
	s, ok := v.m.spots[id]
	if !ok {
		return fmt.Errorf("spot %s: %w", id, parking.ErrNotFound)
	}
	if s.Status != parking.SpotOccupied {
		return &parking.SpotConflictError{SpotID: id, Want: parking.SpotOccupied}
	}
	s.Status = parking.SpotAvailable
	s.IsOccupied = false
	v.m.spots[id] = s
	return nil
}

func (v *memoryView) CountOccupied(_ context.Context, lotID parking.LotID) (int, error) {
	count := 0
	for _, s := range v.m.spots {
		if s.LotID == lotID && s.Status == parking.SpotOccupied {
			count++
		}
	}
	return count, nil
}

func (v *memoryView) SetLotOccupied(_ context.Context, lotID parking.LotID, occupied int) error {
	lot, ok := v.m.lots[lotID]
	if !ok {
		return fmt.Errorf("lot %s: %w", lotID, parking.ErrNotFound)
	}
	lot.Occupied = occupied
	v.m.lots[lotID] = lot
	return nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (v *memoryView) CreateReservation(_ context.Context, r *parking.Reservation) error {
	v.m.reservations[r.ID] = *r
	return nil
}

func (v *memoryView) GetReservation(_ context.Context, id parking.ReservationID) (*parking.Reservation, error) {
	r, ok := v.m.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, parking.ErrNotFound)
	}
	return &r, nil
}

func (v *memoryView) CompleteReservation(_ context.Context, id parking.ReservationID, end time.Time, cost decimal.Decimal) error {
	r, ok := v.m.reservations[id]
	if !ok {
		return fmt.Errorf("reservation %s: %w", id, parking.ErrNotFound)
	}
	if r.Status != parking.ReservationActive {
		return fmt.Errorf("reservation %s: %w", id, parking.ErrAlreadyReleased)
	}
	endCopy := end
	costCopy := cost
	r.EndedAt = &endCopy
	r.Cost = &costCopy
	r.Status = parking.ReservationCompleted
	v.m.reservations[id] = r
	return nil
}

func (v *memoryView) ActiveReservationByVehicle(_ context.Context, vehicle string) (*parking.Reservation, error) {
	for id := range v.m.reservations {
		r := v.m.reservations[id]
		if r.EndedAt == nil && strings.EqualFold(r.VehicleNumber, vehicle) {
			return &r, nil
		}
	}
	return nil, nil
}

func (v *memoryView) ActiveReservationBySpot(_ context.Context, spotID parking.SpotID) (*parking.Reservation, error) {
	for id := range v.m.reservations {
		r := v.m.reservations[id]
		if r.EndedAt == nil && r.SpotID == spotID {
			return &r, nil
		}
	}
	return nil, nil
}

func (v *memoryView) ActiveReservationsByUser(_ context.Context, userID parking.UserID) ([]parking.Reservation, error) {
	var out []parking.Reservation
	for _, r := range v.m.reservations {
		if r.UserID == userID && r.EndedAt == nil {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out, nil
}

func (v *memoryView) ReservationsByUser(_ context.Context, userID parking.UserID) ([]parking.Reservation, error) {
	var out []parking.Reservation
	for _, r := range v.m.reservations {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out, nil
}

// sortByStart orders reservations newest first.
func sortByStart(rs []parking.Reservation) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].StartedAt.After(rs[j].StartedAt) })
}
