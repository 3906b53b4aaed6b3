package parking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openlot/parking-engine/parking"
	"github.com/openlot/parking-engine/parking/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*parking.Engine, *store.Memory) {
	mem := store.NewMemory()
	engine := parking.NewEngine(mem, nil, zaptest.NewLogger(t).Sugar())
	return engine, mem
}

// fixedClock returns a clock pinned to start plus the accumulated
// advances.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(start time.Time) *fixedClock {
	return &fixedClock{now: start}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seedUser(t *testing.T, s parking.Store, flagged bool) parking.Principal {
	t.Helper()
	u := &parking.User{
		ID:       parking.NewUserID(),
		Username: "driver-" + string(parking.NewUserID())[:8],
		Email:    "driver@example.com",
		Role:     parking.RoleUser,
		Flagged:  flagged,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return parking.Principal{UserID: u.ID, Role: u.Role}
}

func seedAdmin(t *testing.T, s parking.Store, phone string) parking.Principal {
	t.Helper()
	u := &parking.User{
		ID:          parking.NewUserID(),
		Username:    "admin",
		PhoneNumber: phone,
		Role:        parking.RoleAdmin,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return parking.Principal{UserID: u.ID, Role: u.Role}
}

// seedLot creates a lot with n available spots numbered 1..n.
func seedLot(t *testing.T, s parking.Store, price string, n int) parking.LotID {
	t.Helper()
	ctx := context.Background()

	lot := &parking.Lot{
		ID:            parking.NewLotID(),
		Name:          "Central Garage",
		PricePerHour:  decimal.RequireFromString(price),
		NumberOfSpots: n,
	}
	require.NoError(t, s.CreateLot(ctx, lot))
	for i := 1; i <= n; i++ {
		require.NoError(t, s.CreateSpot(ctx, &parking.Spot{
			ID:         parking.NewSpotID(),
			LotID:      lot.ID,
			SpotNumber: i,
			Status:     parking.SpotAvailable,
		}))
	}
	return lot.ID
}

// =============================================================================
// RESERVE
// =============================================================================

func TestEngine_Reserve_TakesLowestNumberedSpot(t *testing.T) {
	// GIVEN: A lot with three available spots
	// WHEN: A user reserves
	// THEN: Spot 1 is taken, marked occupied, and the count updates

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 3)

	res, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)

	spot, err := mem.GetSpot(ctx, res.SpotID)
	require.NoError(t, err)
	assert.Equal(t, 1, spot.SpotNumber)
	assert.Equal(t, parking.SpotOccupied, spot.Status)

	occupied, err := mem.CountOccupied(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 1, occupied)

	lot, err := mem.GetLot(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 1, lot.Occupied)
}

func TestEngine_Reserve_NormalizesVehicleNumber(t *testing.T) {
	// GIVEN: A vehicle number with stray case and whitespace
	// WHEN: Reserving
	// THEN: The stored value is trimmed and uppercased

	engine, mem := newTestEngine(t)
	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 1)

	res, err := engine.Reserve(context.Background(), user, lotID, parking.ReserveInput{VehicleNumber: "  ka01ab1234 "})
	require.NoError(t, err)
	assert.Equal(t, "KA01AB1234", res.VehicleNumber)
}

func TestEngine_Reserve_EmptyVehicleNumber_Rejected(t *testing.T) {
	engine, mem := newTestEngine(t)
	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 1)

	_, err := engine.Reserve(context.Background(), user, lotID, parking.ReserveInput{VehicleNumber: "   "})
	assert.ErrorIs(t, err, parking.ErrValidation)
}

func TestEngine_Reserve_FullLot_NoCapacity(t *testing.T) {
	// GIVEN: A one-spot lot already occupied
	// WHEN: A second user reserves
	// THEN: ErrNoCapacity, and the first reservation is untouched

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	first := seedUser(t, mem, false)
	second := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 1)

	_, err := engine.Reserve(ctx, first, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, second, lotID, parking.ReserveInput{VehicleNumber: "KA02CD5678"})
	assert.ErrorIs(t, err, parking.ErrNoCapacity)

	occupied, err := mem.CountOccupied(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 1, occupied)
}

func TestEngine_Reserve_FlaggedUser_RejectedWithAdminContact(t *testing.T) {
	// GIVEN: A flagged account and an admin with a phone number
	// WHEN: The flagged user reserves
	// THEN: Rejection wraps ErrForbidden and carries the admin contact

	engine, mem := newTestEngine(t)
	seedAdmin(t, mem, "555-0100")
	flagged := seedUser(t, mem, true)
	lotID := seedLot(t, mem, "10.0", 1)

	_, err := engine.Reserve(context.Background(), flagged, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.Error(t, err)
	assert.ErrorIs(t, err, parking.ErrForbidden)

	var flaggedErr *parking.FlaggedAccountError
	require.ErrorAs(t, err, &flaggedErr)
	assert.Equal(t, "555-0100", flaggedErr.AdminContact)
	assert.Contains(t, err.Error(), "555-0100")
}

func TestEngine_Reserve_VehicleAlreadyParked_Rejected(t *testing.T) {
	// GIVEN: KA01AB1234 already parked in lot A
	// WHEN: The same vehicle (any case) reserves in lot B
	// THEN: Conflict naming the open reservation

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	user := seedUser(t, mem, false)
	lotA := seedLot(t, mem, "10.0", 2)
	lotB := seedLot(t, mem, "20.0", 2)

	first, err := engine.Reserve(ctx, user, lotA, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, user, lotB, parking.ReserveInput{VehicleNumber: "ka01ab1234"})
	assert.ErrorIs(t, err, parking.ErrConflict)

	var parkedErr *parking.VehicleParkedError
	require.ErrorAs(t, err, &parkedErr)
	assert.Equal(t, first.ID, parkedErr.ReservationID)
}

func TestEngine_Reserve_UnknownLot_NotFound(t *testing.T) {
	engine, mem := newTestEngine(t)
	user := seedUser(t, mem, false)

	_, err := engine.Reserve(context.Background(), user, parking.LotID("missing"), parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	assert.ErrorIs(t, err, parking.ErrNotFound)
}

func TestEngine_Reserve_Concurrent_OneSpot_SingleWinner(t *testing.T) {
	// GIVEN: A one-spot lot and many users racing to reserve
	// WHEN: All reserves run concurrently
	// THEN: Exactly one wins; the occupancy count stays consistent

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	lotID := seedLot(t, mem, "10.0", 1)

	const racers = 8
	principals := make([]parking.Principal, racers)
	for i := range principals {
		principals[i] = seedUser(t, mem, false)
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vehicle := "KA01AB" + string(rune('0'+i)) + "999"
			_, errs[i] = engine.Reserve(ctx, principals[i], lotID, parking.ReserveInput{VehicleNumber: vehicle})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, parking.IsClientError(err), "loser should get a client error, got %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	occupied, err := mem.CountOccupied(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 1, occupied)
}

// =============================================================================
// RELEASE
// =============================================================================

func TestEngine_ReserveRelease_CostMath(t *testing.T) {
	// GIVEN: A reservation at 10.0/hour starting at t=0
	// WHEN: Released exactly two hours later
	// THEN: Cost is 20.00, the spot is free, and the count is zero

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	engine.WithClock(clock.Now)

	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 2)

	res, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	result, err := engine.Release(ctx, user, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", result.Cost.String())
	assert.Equal(t, "2.00", result.DurationHours.String())
	assert.Equal(t, clock.Now(), result.EndedAt)

	spot, err := mem.GetSpot(ctx, res.SpotID)
	require.NoError(t, err)
	assert.Equal(t, parking.SpotAvailable, spot.Status)

	occupied, err := mem.CountOccupied(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 0, occupied)
}

func TestEngine_Release_FractionalHours_RoundedToCents(t *testing.T) {
	// 90 minutes at 12.50/hour is 18.75

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	engine.WithClock(clock.Now)

	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "12.50", 1)

	res, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)

	result, err := engine.Release(ctx, user, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "18.75", result.Cost.String())
}

func TestEngine_Release_Twice_AlreadyReleased(t *testing.T) {
	// GIVEN: A released reservation
	// WHEN: Releasing it again
	// THEN: ErrAlreadyReleased; the stored cost does not change

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	engine.WithClock(clock.Now)

	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 1)

	res, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	first, err := engine.Release(ctx, user, res.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = engine.Release(ctx, user, res.ID)
	assert.ErrorIs(t, err, parking.ErrAlreadyReleased)

	stored, err := mem.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Cost)
	assert.True(t, first.Cost.Equal(*stored.Cost), "settled cost must not change")
}

func TestEngine_Release_NotOwner_ReadsAsNotFound(t *testing.T) {
	// Ownership failures are indistinguishable from missing IDs.

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	owner := seedUser(t, mem, false)
	other := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 1)

	res, err := engine.Reserve(ctx, owner, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)

	_, err = engine.Release(ctx, other, res.ID)
	assert.ErrorIs(t, err, parking.ErrNotFound)
	assert.NotErrorIs(t, err, parking.ErrForbidden)
}

func TestEngine_Release_FreesSpotForNextVehicle(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 1)

	res, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)
	_, err = engine.Release(ctx, user, res.ID)
	require.NoError(t, err)

	next, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA02CD5678"})
	require.NoError(t, err)
	assert.Equal(t, res.SpotID, next.SpotID)
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

func TestEngine_PreviewCost_GrowsWithTime(t *testing.T) {
	// GIVEN: An active reservation at 10.0/hour
	// WHEN: Previewing after one hour and after two
	// THEN: The preview grows; nothing is persisted

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	engine.WithClock(clock.Now)

	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 1)

	res, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	cost1, err := engine.PreviewCost(ctx, user, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", cost1.String())

	clock.Advance(time.Hour)
	cost2, err := engine.PreviewCost(ctx, user, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", cost2.String())

	stored, err := mem.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Cost, "preview must not persist a cost")
}

func TestEngine_PreviewCost_Completed_ReturnsSettledCost(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	engine.WithClock(clock.Now)

	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 1)

	res, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	released, err := engine.Release(ctx, user, res.ID)
	require.NoError(t, err)

	clock.Advance(5 * time.Hour)
	cost, err := engine.PreviewCost(ctx, user, res.ID)
	require.NoError(t, err)
	assert.True(t, released.Cost.Equal(cost))
}

func TestEngine_LotOccupancy(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 3)

	_, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)

	occ, err := engine.LotOccupancy(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 3, occ.TotalSpots)
	assert.Equal(t, 1, occ.Occupied)
	assert.Equal(t, 2, occ.Available)
}

func TestEngine_ActiveReservationsAndHistory(t *testing.T) {
	// GIVEN: One released and one active reservation
	// THEN: Active lists only the open one; history lists both, newest first

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	engine.WithClock(clock.Now)

	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 2)

	first, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = engine.Release(ctx, user, first.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA02CD5678"})
	require.NoError(t, err)

	active, err := engine.ActiveReservations(ctx, user.UserID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, "Central Garage", active[0].LotName)

	history, err := engine.History(ctx, user.UserID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
	assert.Equal(t, parking.ReservationCompleted, history[1].Status)
	require.NotNil(t, history[1].Cost)
}

// =============================================================================
// CACHE INVALIDATION
// =============================================================================

// recordingCache captures deletes so tests can assert on eviction.
type recordingCache struct {
	parking.NopCache
	mu      sync.Mutex
	deleted []string
}

func (c *recordingCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, keys...)
	return nil
}

func TestEngine_ReserveAndRelease_EvictLotCacheKeys(t *testing.T) {
	mem := store.NewMemory()
	rec := &recordingCache{}
	engine := parking.NewEngine(mem, rec, zaptest.NewLogger(t).Sugar())

	ctx := context.Background()
	user := seedUser(t, mem, false)
	lotID := seedLot(t, mem, "10.0", 1)

	res, err := engine.Reserve(ctx, user, lotID, parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.NoError(t, err)
	_, err = engine.Release(ctx, user, res.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		parking.LotListingKey, parking.LotDetailKey(lotID),
		parking.LotListingKey, parking.LotDetailKey(lotID),
	}, rec.deleted)
}

func TestEngine_FailedReserve_DoesNotEvict(t *testing.T) {
	mem := store.NewMemory()
	rec := &recordingCache{}
	engine := parking.NewEngine(mem, rec, zaptest.NewLogger(t).Sugar())

	user := seedUser(t, mem, false)

	_, err := engine.Reserve(context.Background(), user, parking.LotID("missing"), parking.ReserveInput{VehicleNumber: "KA01AB1234"})
	require.Error(t, err)
	assert.Empty(t, rec.deleted)
}
