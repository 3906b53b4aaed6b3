/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements parking.TxStore using SQLite. In production on PostgreSQL
  the same patterns apply - only minor SQL dialect differences.

CONDITIONAL UPDATES:
  MarkOccupied and MarkAvailable use a single atomic conditional
  update, e.g.

      UPDATE parking_spots SET status='O', is_occupied=1
      WHERE id=? AND status='A'

  and check the affected-row count. Zero rows means a concurrent
  request flipped the spot first, reported as SpotConflictError. The
  same pattern guards CompleteReservation (only from Active), making
  release idempotent at the row level.

KEY TABLES:
  users:          Accounts; the core reads id/flagged/role
  parking_lots:   Lots with cached occupied-count
  parking_spots:  One row per spot; UNIQUE(lot_id, spot_number)
  reservations:   Lifecycle rows; partial unique index keeps at most
                  one open reservation per spot and per vehicle

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): multiple readers
  don't block, single writer at a time, better crash recovery.

SEE ALSO:
  - parking/store.go: Interface definitions
  - parking/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/openlot/parking-engine/parking"
)

// Store implements parking.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

var _ parking.TxStore = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent transactions.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		flagged INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	CREATE TABLE IF NOT EXISTS parking_lots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price_per_hour TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		pin_code TEXT NOT NULL DEFAULT '',
		number_of_spots INTEGER NOT NULL,
		occupied INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS parking_spots (
		id TEXT PRIMARY KEY,
		lot_id TEXT NOT NULL REFERENCES parking_lots(id) ON DELETE CASCADE,
		spot_number INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'A' CHECK (status IN ('A', 'O')),
		is_occupied INTEGER NOT NULL DEFAULT 0,
		floor INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		UNIQUE(lot_id, spot_number)
	);

	-- Hot path: FirstAvailableSpot scans by lot and status.
	CREATE INDEX IF NOT EXISTS idx_spots_lot_status
		ON parking_spots(lot_id, status, spot_number);

	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		spot_id TEXT NOT NULL REFERENCES parking_spots(id),
		lot_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		vehicle_number TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		cost TEXT,
		status TEXT NOT NULL DEFAULT 'Active',
		phone_number TEXT NOT NULL DEFAULT '',
		customer_name TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT ''
	);

	-- At most one open reservation per spot and per vehicle. These back
	-- the invariants the engine checks; a racing insert that slips past
	-- the checks still cannot commit.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_open_spot
		ON reservations(spot_id) WHERE ended_at IS NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_open_vehicle
		ON reservations(vehicle_number) WHERE ended_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_reservations_user
		ON reservations(user_id, started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx, so every query
// helper works inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(parking.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&txStore{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the in-transaction Store view.
type txStore struct {
	q querier
}

var _ parking.Store = (*txStore)(nil)

// =============================================================================
// USERS
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u *parking.User) error {
	return createUser(ctx, s.db, u)
}
func (t *txStore) CreateUser(ctx context.Context, u *parking.User) error {
	return createUser(ctx, t.q, u)
}

func createUser(ctx context.Context, q querier, u *parking.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, username, email, first_name, last_name, phone_number, address, role, flagged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.PhoneNumber,
		u.Address, u.Role, boolToInt(u.Flagged), u.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) GetUser(ctx context.Context, id parking.UserID) (*parking.User, error) {
	return getUser(ctx, s.db, id)
}
func (t *txStore) GetUser(ctx context.Context, id parking.UserID) (*parking.User, error) {
	return getUser(ctx, t.q, id)
}

const userColumns = `id, username, email, first_name, last_name, phone_number, address, role, flagged, created_at`

func getUser(ctx context.Context, q querier, id parking.UserID) (*parking.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, parking.ErrNotFound)
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]parking.User, error) {
	return listUsers(ctx, s.db)
}
func (t *txStore) ListUsers(ctx context.Context) ([]parking.User, error) {
	return listUsers(ctx, t.q)
}

func listUsers(ctx context.Context, q querier) ([]parking.User, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []parking.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) SetUserFlagged(ctx context.Context, id parking.UserID, flagged bool) error {
	return setUserFlagged(ctx, s.db, id, flagged)
}
func (t *txStore) SetUserFlagged(ctx context.Context, id parking.UserID, flagged bool) error {
	return setUserFlagged(ctx, t.q, id, flagged)
}

func setUserFlagged(ctx context.Context, q querier, id parking.UserID, flagged bool) error {
	res, err := q.ExecContext(ctx, `UPDATE users SET flagged = ? WHERE id = ?`, boolToInt(flagged), id)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Errorf("user %s: %w", id, parking.ErrNotFound))
}

func (s *Store) GetAdminContact(ctx context.Context) (string, error) {
	return getAdminContact(ctx, s.db)
}
func (t *txStore) GetAdminContact(ctx context.Context) (string, error) {
	return getAdminContact(ctx, t.q)
}

func getAdminContact(ctx context.Context, q querier) (string, error) {
	var phone string
	err := q.QueryRowContext(ctx,
		`SELECT phone_number FROM users WHERE role = 'admin' ORDER BY username LIMIT 1`,
	).Scan(&phone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return phone, err
}

// =============================================================================
// LOTS
// =============================================================================

func (s *Store) CreateLot(ctx context.Context, lot *parking.Lot) error {
	return createLot(ctx, s.db, lot)
}
func (t *txStore) CreateLot(ctx context.Context, lot *parking.Lot) error {
	return createLot(ctx, t.q, lot)
}

func createLot(ctx context.Context, q querier, lot *parking.Lot) error {
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO parking_lots (id, name, price_per_hour, address, pin_code, number_of_spots, occupied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID, lot.Name, lot.PricePerHour.String(), lot.Address, lot.PinCode,
		lot.NumberOfSpots, lot.Occupied, lot.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) UpdateLot(ctx context.Context, lot *parking.Lot) error {
	return updateLot(ctx, s.db, lot)
}
func (t *txStore) UpdateLot(ctx context.Context, lot *parking.Lot) error {
	return updateLot(ctx, t.q, lot)
}

func updateLot(ctx context.Context, q querier, lot *parking.Lot) error {
	res, err := q.ExecContext(ctx, `
		UPDATE parking_lots
		SET name = ?, price_per_hour = ?, address = ?, pin_code = ?
		WHERE id = ?`,
		lot.Name, lot.PricePerHour.String(), lot.Address, lot.PinCode, lot.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Errorf("lot %s: %w", lot.ID, parking.ErrNotFound))
}

func (s *Store) DeleteLot(ctx context.Context, id parking.LotID) error {
	return deleteLot(ctx, s.db, id)
}
func (t *txStore) DeleteLot(ctx context.Context, id parking.LotID) error {
	return deleteLot(ctx, t.q, id)
}

func deleteLot(ctx context.Context, q querier, id parking.LotID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM parking_lots WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Errorf("lot %s: %w", id, parking.ErrNotFound))
}

func (s *Store) GetLot(ctx context.Context, id parking.LotID) (*parking.Lot, error) {
	return getLot(ctx, s.db, id)
}
func (t *txStore) GetLot(ctx context.Context, id parking.LotID) (*parking.Lot, error) {
	return getLot(ctx, t.q, id)
}

const lotColumns = `id, name, price_per_hour, address, pin_code, number_of_spots, occupied, created_at`

func getLot(ctx context.Context, q querier, id parking.LotID) (*parking.Lot, error) {
	row := q.QueryRowContext(ctx, `SELECT `+lotColumns+` FROM parking_lots WHERE id = ?`, id)
	lot, err := scanLot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lot %s: %w", id, parking.ErrNotFound)
	}
	return lot, err
}

func (s *Store) ListLots(ctx context.Context) ([]parking.Lot, error) {
	return listLots(ctx, s.db)
}
func (t *txStore) ListLots(ctx context.Context) ([]parking.Lot, error) {
	return listLots(ctx, t.q)
}

func listLots(ctx context.Context, q querier) ([]parking.Lot, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+lotColumns+` FROM parking_lots ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []parking.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

// =============================================================================
// SPOTS
// =============================================================================

func (s *Store) CreateSpot(ctx context.Context, spot *parking.Spot) error {
	return createSpot(ctx, s.db, spot)
}
func (t *txStore) CreateSpot(ctx context.Context, spot *parking.Spot) error {
	return createSpot(ctx, t.q, spot)
}

func createSpot(ctx context.Context, q querier, spot *parking.Spot) error {
	if spot.CreatedAt.IsZero() {
		spot.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO parking_spots (id, lot_id, spot_number, status, is_occupied, floor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		spot.ID, spot.LotID, spot.SpotNumber, spot.Status,
		boolToInt(spot.IsOccupied), spot.Floor, spot.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) GetSpot(ctx context.Context, id parking.SpotID) (*parking.Spot, error) {
	return getSpot(ctx, s.db, id)
}
func (t *txStore) GetSpot(ctx context.Context, id parking.SpotID) (*parking.Spot, error) {
	return getSpot(ctx, t.q, id)
}

const spotColumns = `id, lot_id, spot_number, status, is_occupied, floor, created_at`

func getSpot(ctx context.Context, q querier, id parking.SpotID) (*parking.Spot, error) {
	row := q.QueryRowContext(ctx, `SELECT `+spotColumns+` FROM parking_spots WHERE id = ?`, id)
	spot, err := scanSpot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("spot %s: %w", id, parking.ErrNotFound)
	}
	return spot, err
}

func (s *Store) ListSpots(ctx context.Context, lotID parking.LotID) ([]parking.Spot, error) {
	return listSpots(ctx, s.db, lotID)
}
func (t *txStore) ListSpots(ctx context.Context, lotID parking.LotID) ([]parking.Spot, error) {
	return listSpots(ctx, t.q, lotID)
}

func listSpots(ctx context.Context, q querier, lotID parking.LotID) ([]parking.Spot, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+spotColumns+` FROM parking_spots WHERE lot_id = ? ORDER BY spot_number`, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spots []parking.Spot
	for rows.Next() {
		spot, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		spots = append(spots, *spot)
	}
	return spots, rows.Err()
}

func (s *Store) FirstAvailableSpot(ctx context.Context, lotID parking.LotID) (*parking.Spot, error) {
	return firstAvailableSpot(ctx, s.db, lotID)
}
func (t *txStore) FirstAvailableSpot(ctx context.Context, lotID parking.LotID) (*parking.Spot, error) {
	return firstAvailableSpot(ctx, t.q, lotID)
}

func firstAvailableSpot(ctx context.Context, q querier, lotID parking.LotID) (*parking.Spot, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+spotColumns+` FROM parking_spots
		WHERE lot_id = ? AND status = 'A'
		ORDER BY spot_number LIMIT 1`, lotID)
	spot, err := scanSpot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return spot, err
}

func (s *Store) MarkOccupied(ctx context.Context, id parking.SpotID) error {
	return markSpot(ctx, s.db, id, parking.SpotAvailable, parking.SpotOccupied)
}
func (t *txStore) MarkOccupied(ctx context.Context, id parking.SpotID) error {
	return markSpot(ctx, t.q, id, parking.SpotAvailable, parking.SpotOccupied)
}

func (s *Store) MarkAvailable(ctx context.Context, id parking.SpotID) error {
	return markSpot(ctx, s.db, id, parking.SpotOccupied, parking.SpotAvailable)
}
func (t *txStore) MarkAvailable(ctx context.Context, id parking.SpotID) error {
	return markSpot(ctx, t.q, id, parking.SpotOccupied, parking.SpotAvailable)
}

// markSpot is the atomic check-and-set: the WHERE clause carries the
// expected prior status and the affected-row count decides the winner.
func markSpot(ctx context.Context, q querier, id parking.SpotID, from, to parking.SpotStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE parking_spots SET status = ?, is_occupied = ?
		WHERE id = ? AND status = ?`,
		to, boolToInt(to == parking.SpotOccupied), id, from,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &parking.SpotConflictError{SpotID: id, Want: from}
	}
	return nil
}

func (s *Store) CountOccupied(ctx context.Context, lotID parking.LotID) (int, error) {
	return countOccupied(ctx, s.db, lotID)
}
func (t *txStore) CountOccupied(ctx context.Context, lotID parking.LotID) (int, error) {
	return countOccupied(ctx, t.q, lotID)
}

func countOccupied(ctx context.Context, q querier, lotID parking.LotID) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parking_spots WHERE lot_id = ? AND status = 'O'`, lotID,
	).Scan(&n)
	return n, err
}

func (s *Store) SetLotOccupied(ctx context.Context, lotID parking.LotID, occupied int) error {
	return setLotOccupied(ctx, s.db, lotID, occupied)
}
func (t *txStore) SetLotOccupied(ctx context.Context, lotID parking.LotID, occupied int) error {
	return setLotOccupied(ctx, t.q, lotID, occupied)
}

func setLotOccupied(ctx context.Context, q querier, lotID parking.LotID, occupied int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE parking_lots SET occupied = ? WHERE id = ?`, occupied, lotID)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Errorf("lot %s: %w", lotID, parking.ErrNotFound))
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (s *Store) CreateReservation(ctx context.Context, r *parking.Reservation) error {
	return createReservation(ctx, s.db, r)
}
func (t *txStore) CreateReservation(ctx context.Context, r *parking.Reservation) error {
	return createReservation(ctx, t.q, r)
}

func createReservation(ctx context.Context, q querier, r *parking.Reservation) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO reservations
		(id, spot_id, lot_id, user_id, vehicle_number, started_at, ended_at, cost, status, phone_number, customer_name, remarks)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?)`,
		r.ID, r.SpotID, r.LotID, r.UserID, r.VehicleNumber,
		r.StartedAt.Format(time.RFC3339Nano), r.Status,
		r.PhoneNumber, r.CustomerName, r.Remarks,
	)
	return err
}

func (s *Store) GetReservation(ctx context.Context, id parking.ReservationID) (*parking.Reservation, error) {
	return getReservation(ctx, s.db, id)
}
func (t *txStore) GetReservation(ctx context.Context, id parking.ReservationID) (*parking.Reservation, error) {
	return getReservation(ctx, t.q, id)
}

const reservationColumns = `id, spot_id, lot_id, user_id, vehicle_number, started_at, ended_at, cost, status, phone_number, customer_name, remarks`

func getReservation(ctx context.Context, q querier, id parking.ReservationID) (*parking.Reservation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %s: %w", id, parking.ErrNotFound)
	}
	return r, err
}

func (s *Store) CompleteReservation(ctx context.Context, id parking.ReservationID, end time.Time, cost decimal.Decimal) error {
	return completeReservation(ctx, s.db, id, end, cost)
}
func (t *txStore) CompleteReservation(ctx context.Context, id parking.ReservationID, end time.Time, cost decimal.Decimal) error {
	return completeReservation(ctx, t.q, id, end, cost)
}

func completeReservation(ctx context.Context, q querier, id parking.ReservationID, end time.Time, cost decimal.Decimal) error {
	res, err := q.ExecContext(ctx, `
		UPDATE reservations
		SET ended_at = ?, cost = ?, status = ?
		WHERE id = ? AND status = ?`,
		end.Format(time.RFC3339Nano), cost.String(),
		parking.ReservationCompleted, id, parking.ReservationActive,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from a completed one.
		if _, getErr := getReservation(ctx, q, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("reservation %s: %w", id, parking.ErrAlreadyReleased)
	}
	return nil
}

func (s *Store) ActiveReservationByVehicle(ctx context.Context, vehicle string) (*parking.Reservation, error) {
	return activeReservation(ctx, s.db, `vehicle_number = ? COLLATE NOCASE`, vehicle)
}
func (t *txStore) ActiveReservationByVehicle(ctx context.Context, vehicle string) (*parking.Reservation, error) {
	return activeReservation(ctx, t.q, `vehicle_number = ? COLLATE NOCASE`, vehicle)
}

func (s *Store) ActiveReservationBySpot(ctx context.Context, spotID parking.SpotID) (*parking.Reservation, error) {
	return activeReservation(ctx, s.db, `spot_id = ?`, spotID)
}
func (t *txStore) ActiveReservationBySpot(ctx context.Context, spotID parking.SpotID) (*parking.Reservation, error) {
	return activeReservation(ctx, t.q, `spot_id = ?`, spotID)
}

func activeReservation(ctx context.Context, q querier, where string, arg any) (*parking.Reservation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE `+where+` AND ended_at IS NULL LIMIT 1`, arg)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *Store) ActiveReservationsByUser(ctx context.Context, userID parking.UserID) ([]parking.Reservation, error) {
	return reservationsByUser(ctx, s.db, userID, true)
}
func (t *txStore) ActiveReservationsByUser(ctx context.Context, userID parking.UserID) ([]parking.Reservation, error) {
	return reservationsByUser(ctx, t.q, userID, true)
}

func (s *Store) ReservationsByUser(ctx context.Context, userID parking.UserID) ([]parking.Reservation, error) {
	return reservationsByUser(ctx, s.db, userID, false)
}
func (t *txStore) ReservationsByUser(ctx context.Context, userID parking.UserID) ([]parking.Reservation, error) {
	return reservationsByUser(ctx, t.q, userID, false)
}

func reservationsByUser(ctx context.Context, q querier, userID parking.UserID, activeOnly bool) ([]parking.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = ?`
	if activeOnly {
		query += ` AND ended_at IS NULL`
	}
	query += ` ORDER BY started_at DESC`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []parking.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*parking.User, error) {
	var (
		u         parking.User
		flagged   int
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.PhoneNumber, &u.Address, &u.Role, &flagged, &createdAt); err != nil {
		return nil, err
	}
	u.Flagged = flagged != 0
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func scanLot(row rowScanner) (*parking.Lot, error) {
	var (
		lot       parking.Lot
		price     string
		createdAt string
	)
	if err := row.Scan(&lot.ID, &lot.Name, &price, &lot.Address, &lot.PinCode,
		&lot.NumberOfSpots, &lot.Occupied, &createdAt); err != nil {
		return nil, err
	}
	var err error
	lot.PricePerHour, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("lot %s has malformed price %q: %w", lot.ID, price, err)
	}
	lot.CreatedAt = parseTime(createdAt)
	return &lot, nil
}

func scanSpot(row rowScanner) (*parking.Spot, error) {
	var (
		spot       parking.Spot
		isOccupied int
		createdAt  string
	)
	if err := row.Scan(&spot.ID, &spot.LotID, &spot.SpotNumber, &spot.Status,
		&isOccupied, &spot.Floor, &createdAt); err != nil {
		return nil, err
	}
	spot.IsOccupied = isOccupied != 0
	spot.CreatedAt = parseTime(createdAt)
	return &spot, nil
}

func scanReservation(row rowScanner) (*parking.Reservation, error) {
	var (
		r         parking.Reservation
		startedAt string
		endedAt   sql.NullString
		cost      sql.NullString
	)
	if err := row.Scan(&r.ID, &r.SpotID, &r.LotID, &r.UserID, &r.VehicleNumber,
		&startedAt, &endedAt, &cost, &r.Status, &r.PhoneNumber, &r.CustomerName, &r.Remarks); err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(startedAt)
	if endedAt.Valid {
		end := parseTime(endedAt.String)
		r.EndedAt = &end
	}
	if cost.Valid {
		c, err := decimal.NewFromString(cost.String)
		if err != nil {
			return nil, fmt.Errorf("reservation %s has malformed cost %q: %w", r.ID, cost.String, err)
		}
		r.Cost = &c
	}
	return &r, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
