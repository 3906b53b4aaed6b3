// Package store provides an in-memory Store implementation for
// testing and development. WithTx is simulated with a snapshot that is
// restored when the callback fails, and the whole transaction runs
// under the store mutex, which linearizes concurrent reserve attempts
// the way row locks do in a real database.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlot/parking-engine/parking"
)

type Memory struct {
	mu           sync.RWMutex
	users        map[parking.UserID]parking.User
	lots         map[parking.LotID]parking.Lot
	spots        map[parking.SpotID]parking.Spot
	reservations map[parking.ReservationID]parking.Reservation
}

var _ parking.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[parking.UserID]parking.User),
		lots:         make(map[parking.LotID]parking.Lot),
		spots:        make(map[parking.SpotID]parking.Spot),
		reservations: make(map[parking.ReservationID]parking.Reservation),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, u *parking.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreateUser(nil, u)
}

func (m *Memory) GetUser(_ context.Context, id parking.UserID) (*parking.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetUser(nil, id)
}

func (m *Memory) ListUsers(_ context.Context) ([]parking.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListUsers(nil)
}

func (m *Memory) SetUserFlagged(_ context.Context, id parking.UserID, flagged bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SetUserFlagged(nil, id, flagged)
}

func (m *Memory) GetAdminContact(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetAdminContact(nil)
}

// =============================================================================
// LOTS
// =============================================================================

func (m *Memory) CreateLot(_ context.Context, lot *parking.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreateLot(nil, lot)
}

func (m *Memory) UpdateLot(_ context.Context, lot *parking.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateLot(nil, lot)
}

func (m *Memory) DeleteLot(_ context.Context, id parking.LotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteLot(nil, id)
}

func (m *Memory) GetLot(_ context.Context, id parking.LotID) (*parking.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetLot(nil, id)
}

func (m *Memory) ListLots(_ context.Context) ([]parking.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListLots(nil)
}

// =============================================================================
// SPOTS
// =============================================================================

func (m *Memory) CreateSpot(_ context.Context, s *parking.Spot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreateSpot(nil, s)
}

func (m *Memory) GetSpot(_ context.Context, id parking.SpotID) (*parking.Spot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetSpot(nil, id)
}

func (m *Memory) ListSpots(_ context.Context, lotID parking.LotID) ([]parking.Spot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListSpots(nil, lotID)
}

func (m *Memory) FirstAvailableSpot(_ context.Context, lotID parking.LotID) (*parking.Spot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().FirstAvailableSpot(nil, lotID)
}

func (m *Memory) MarkOccupied(_ context.Context, id parking.SpotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().MarkOccupied(nil, id)
}

func (m *Memory) MarkAvailable(_ context.Context, id parking.SpotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().MarkAvailable(nil, id)
}

func (m *Memory) CountOccupied(_ context.Context, lotID parking.LotID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().CountOccupied(nil, lotID)
}

func (m *Memory) SetLotOccupied(_ context.Context, lotID parking.LotID, occupied int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SetLotOccupied(nil, lotID, occupied)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (m *Memory) CreateReservation(_ context.Context, r *parking.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreateReservation(nil, r)
}

func (m *Memory) GetReservation(_ context.Context, id parking.ReservationID) (*parking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetReservation(nil, id)
}

func (m *Memory) CompleteReservation(_ context.Context, id parking.ReservationID, end time.Time, cost decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CompleteReservation(nil, id, end, cost)
}

func (m *Memory) ActiveReservationByVehicle(_ context.Context, vehicle string) (*parking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ActiveReservationByVehicle(nil, vehicle)
}

func (m *Memory) ActiveReservationBySpot(_ context.Context, spotID parking.SpotID) (*parking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ActiveReservationBySpot(nil, spotID)
}

func (m *Memory) ActiveReservationsByUser(_ context.Context, userID parking.UserID) ([]parking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ActiveReservationsByUser(nil, userID)
}

func (m *Memory) ReservationsByUser(_ context.Context, userID parking.UserID) ([]parking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ReservationsByUser(nil, userID)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against an unlocked view while holding the store
// mutex, restoring a snapshot when fn fails. Holding the lock for the
// whole callback serializes transactions, mirroring the isolation the
// engine requires for the check-and-set on spots.
func (m *Memory) WithTx(_ context.Context, fn func(parking.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(m.view()); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *Memory) view() *memoryView { return &memoryView{m: m} }

type memorySnapshot struct {
	users        map[parking.UserID]parking.User
	lots         map[parking.LotID]parking.Lot
	spots        map[parking.SpotID]parking.Spot
	reservations map[parking.ReservationID]parking.Reservation
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		users:        make(map[parking.UserID]parking.User, len(m.users)),
		lots:         make(map[parking.LotID]parking.Lot, len(m.lots)),
		spots:        make(map[parking.SpotID]parking.Spot, len(m.spots)),
		reservations: make(map[parking.ReservationID]parking.Reservation, len(m.reservations)),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.lots {
		s.lots[k] = v
	}
	for k, v := range m.spots {
		s.spots[k] = v
	}
	for k, v := range m.reservations {
		s.reservations[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.lots = s.lots
	m.spots = s.spots
	m.reservations = s.reservations
}
