package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlot/parking-engine/parking"
	"github.com/openlot/parking-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedLot(t *testing.T, s *sqlite.Store, n int) (parking.LotID, []parking.Spot) {
	t.Helper()
	ctx := context.Background()

	lot := &parking.Lot{
		ID:            parking.NewLotID(),
		Name:          "Central Garage",
		PricePerHour:  decimal.RequireFromString("10.50"),
		Address:       "1 Main St",
		PinCode:       "560001",
		NumberOfSpots: n,
	}
	require.NoError(t, s.CreateLot(ctx, lot))
	for i := 1; i <= n; i++ {
		require.NoError(t, s.CreateSpot(ctx, &parking.Spot{
			ID:         parking.NewSpotID(),
			LotID:      lot.ID,
			SpotNumber: i,
			Status:     parking.SpotAvailable,
			Floor:      1,
		}))
	}
	spots, err := s.ListSpots(ctx, lot.ID)
	require.NoError(t, err)
	return lot.ID, spots
}

func seedReservation(t *testing.T, s *sqlite.Store, lotID parking.LotID, spotID parking.SpotID, vehicle string) *parking.Reservation {
	t.Helper()
	r := &parking.Reservation{
		ID:            parking.NewReservationID(),
		SpotID:        spotID,
		LotID:         lotID,
		UserID:        parking.NewUserID(),
		VehicleNumber: vehicle,
		StartedAt:     time.Now().UTC(),
		Status:        parking.ReservationActive,
	}
	require.NoError(t, s.CreateReservation(context.Background(), r))
	return r
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestSQLite_Lot_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lotID, _ := seedLot(t, s, 2)

	lot, err := s.GetLot(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, "Central Garage", lot.Name)
	assert.True(t, decimal.RequireFromString("10.50").Equal(lot.PricePerHour))
	assert.Equal(t, 2, lot.NumberOfSpots)
	assert.Equal(t, 0, lot.Occupied)
	assert.False(t, lot.CreatedAt.IsZero())
}

func TestSQLite_GetLot_Missing_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetLot(context.Background(), parking.LotID("missing"))
	assert.ErrorIs(t, err, parking.ErrNotFound)
}

func TestSQLite_User_FlagRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &parking.User{
		ID:          parking.NewUserID(),
		Username:    "driver",
		Email:       "driver@example.com",
		PhoneNumber: "555-0101",
		Role:        parking.RoleUser,
	}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NoError(t, s.SetUserFlagged(ctx, u.ID, true))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Flagged)

	err = s.SetUserFlagged(ctx, parking.UserID("missing"), true)
	assert.ErrorIs(t, err, parking.ErrNotFound)
}

func TestSQLite_GetAdminContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contact, err := s.GetAdminContact(ctx)
	require.NoError(t, err)
	assert.Empty(t, contact)

	require.NoError(t, s.CreateUser(ctx, &parking.User{
		ID:          parking.NewUserID(),
		Username:    "ops",
		PhoneNumber: "555-0100",
		Role:        parking.RoleAdmin,
	}))

	contact, err = s.GetAdminContact(ctx)
	require.NoError(t, err)
	assert.Equal(t, "555-0100", contact)
}

// =============================================================================
// CONDITIONAL UPDATES
// =============================================================================

func TestSQLite_MarkOccupied_SecondFlipLoses(t *testing.T) {
	// The WHERE status='A' clause plus the affected-row check is the
	// double-booking guard; the second flip must fail.

	s := newTestStore(t)
	ctx := context.Background()
	_, spots := seedLot(t, s, 1)

	require.NoError(t, s.MarkOccupied(ctx, spots[0].ID))

	err := s.MarkOccupied(ctx, spots[0].ID)
	require.Error(t, err)

	var conflict *parking.SpotConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, parking.ErrConflict)

	spot, err := s.GetSpot(ctx, spots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, parking.SpotOccupied, spot.Status)
	assert.True(t, spot.IsOccupied)
}

func TestSQLite_MarkAvailable_RequiresOccupied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, spots := seedLot(t, s, 1)

	err := s.MarkAvailable(ctx, spots[0].ID)
	assert.ErrorIs(t, err, parking.ErrConflict)
}

func TestSQLite_CompleteReservation_ConditionalOnActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lotID, spots := seedLot(t, s, 1)
	r := seedReservation(t, s, lotID, spots[0].ID, "KA01AB1234")

	end := time.Now().UTC()
	cost := decimal.RequireFromString("21.00")
	require.NoError(t, s.CompleteReservation(ctx, r.ID, end, cost))

	// Second completion is rejected and the stored cost is untouched.
	err := s.CompleteReservation(ctx, r.ID, end.Add(time.Hour), decimal.RequireFromString("99.00"))
	assert.ErrorIs(t, err, parking.ErrAlreadyReleased)

	stored, err := s.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, parking.ReservationCompleted, stored.Status)
	require.NotNil(t, stored.Cost)
	assert.True(t, cost.Equal(*stored.Cost))
	require.NotNil(t, stored.EndedAt)
	assert.True(t, end.Equal(*stored.EndedAt))

	// A missing reservation reads as not found, not already-released.
	err = s.CompleteReservation(ctx, parking.ReservationID("missing"), end, cost)
	assert.ErrorIs(t, err, parking.ErrNotFound)
}

// =============================================================================
// SPOT SELECTION AND CONSTRAINTS
// =============================================================================

func TestSQLite_FirstAvailableSpot_OrderAndExhaustion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lotID, spots := seedLot(t, s, 2)

	spot, err := s.FirstAvailableSpot(ctx, lotID)
	require.NoError(t, err)
	require.NotNil(t, spot)
	assert.Equal(t, 1, spot.SpotNumber)

	require.NoError(t, s.MarkOccupied(ctx, spots[0].ID))
	spot, err = s.FirstAvailableSpot(ctx, lotID)
	require.NoError(t, err)
	require.NotNil(t, spot)
	assert.Equal(t, 2, spot.SpotNumber)

	require.NoError(t, s.MarkOccupied(ctx, spots[1].ID))
	spot, err = s.FirstAvailableSpot(ctx, lotID)
	require.NoError(t, err)
	assert.Nil(t, spot)
}

func TestSQLite_CreateSpot_DuplicateNumber_Rejected(t *testing.T) {
	s := newTestStore(t)
	lotID, _ := seedLot(t, s, 1)

	err := s.CreateSpot(context.Background(), &parking.Spot{
		ID:         parking.NewSpotID(),
		LotID:      lotID,
		SpotNumber: 1,
		Status:     parking.SpotAvailable,
	})
	assert.Error(t, err, "UNIQUE(lot_id, spot_number) must reject the duplicate")
}

func TestSQLite_OpenReservation_UniquePerVehicle(t *testing.T) {
	// The partial unique index is the last line of defense if a racing
	// insert slips past the engine's checks.

	s := newTestStore(t)
	lotID, spots := seedLot(t, s, 2)
	seedReservation(t, s, lotID, spots[0].ID, "KA01AB1234")

	err := s.CreateReservation(context.Background(), &parking.Reservation{
		ID:            parking.NewReservationID(),
		SpotID:        spots[1].ID,
		LotID:         lotID,
		UserID:        parking.NewUserID(),
		VehicleNumber: "KA01AB1234",
		StartedAt:     time.Now().UTC(),
		Status:        parking.ReservationActive,
	})
	assert.Error(t, err)
}

func TestSQLite_DeleteLot_CascadesToSpots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lotID, spots := seedLot(t, s, 2)

	require.NoError(t, s.DeleteLot(ctx, lotID))

	_, err := s.GetLot(ctx, lotID)
	assert.ErrorIs(t, err, parking.ErrNotFound)
	for _, spot := range spots {
		_, err := s.GetSpot(ctx, spot.ID)
		assert.ErrorIs(t, err, parking.ErrNotFound)
	}
}

// =============================================================================
// RESERVATION LOOKUPS
// =============================================================================

func TestSQLite_ActiveReservationByVehicle_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lotID, spots := seedLot(t, s, 1)
	r := seedReservation(t, s, lotID, spots[0].ID, "KA01AB1234")

	found, err := s.ActiveReservationByVehicle(ctx, "ka01ab1234")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, r.ID, found.ID)

	require.NoError(t, s.CompleteReservation(ctx, r.ID, time.Now().UTC(), decimal.Zero))
	found, err = s.ActiveReservationByVehicle(ctx, "KA01AB1234")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSQLite_ReservationsByUser_NewestFirstAndActiveFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lotID, spots := seedLot(t, s, 2)
	userID := parking.NewUserID()

	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	older := &parking.Reservation{
		ID: parking.NewReservationID(), SpotID: spots[0].ID, LotID: lotID, UserID: userID,
		VehicleNumber: "KA01AB1234", StartedAt: base, Status: parking.ReservationActive,
	}
	require.NoError(t, s.CreateReservation(ctx, older))
	require.NoError(t, s.CompleteReservation(ctx, older.ID, base.Add(time.Hour), decimal.RequireFromString("10.00")))

	newer := &parking.Reservation{
		ID: parking.NewReservationID(), SpotID: spots[1].ID, LotID: lotID, UserID: userID,
		VehicleNumber: "KA02CD5678", StartedAt: base.Add(2 * time.Hour), Status: parking.ReservationActive,
	}
	require.NoError(t, s.CreateReservation(ctx, newer))

	all, err := s.ReservationsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)

	active, err := s.ActiveReservationsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, newer.ID, active[0].ID)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lotID, spots := seedLot(t, s, 1)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx parking.Store) error {
		if err := tx.MarkOccupied(ctx, spots[0].ID); err != nil {
			return err
		}
		if err := tx.SetLotOccupied(ctx, lotID, 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	spot, err := s.GetSpot(ctx, spots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, parking.SpotAvailable, spot.Status)

	lot, err := s.GetLot(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 0, lot.Occupied)
}

func TestSQLite_WithTx_CommitsOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lotID, spots := seedLot(t, s, 1)

	err := s.WithTx(ctx, func(tx parking.Store) error {
		if err := tx.MarkOccupied(ctx, spots[0].ID); err != nil {
			return err
		}
		return tx.SetLotOccupied(ctx, lotID, 1)
	})
	require.NoError(t, err)

	occupied, err := s.CountOccupied(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 1, occupied)

	lot, err := s.GetLot(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 1, lot.Occupied)
}
