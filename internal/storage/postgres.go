package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/ridehail/internal/models"
)

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// mapErr normalizes driver-level failures so callers can treat
// timeouts and dropped connections as a single transient condition.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

type PostgresRideStore struct {
	db *sql.DB
}

func NewPostgresRideStore(db *sql.DB) *PostgresRideStore {
	return &PostgresRideStore{db: db}
}

const rideColumns = `id, rider_id, COALESCE(driver_id, ''), pickup_lat, pickup_lng, drop_lat, drop_lng,
	pickup_addr, drop_addr, price, status, settlement, created_at, updated_at`

func scanRide(row interface{ Scan(...any) error }) (*models.Ride, error) {
	var r models.Ride
	err := row.Scan(&r.ID, &r.RiderID, &r.DriverID,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Drop.Lat, &r.Drop.Lng,
		&r.PickupAddr, &r.DropAddr, &r.Price, &r.Status, &r.Settlement,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (p *PostgresRideStore) CreateRide(ctx context.Context, r *models.Ride) error {
	var driverID any
	if r.DriverID != "" {
		driverID = r.DriverID
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides (id, rider_id, driver_id, pickup_lat, pickup_lng, drop_lat, drop_lng,
			pickup_addr, drop_addr, price, status, settlement, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.RiderID, driverID,
		r.Pickup.Lat, r.Pickup.Lng, r.Drop.Lat, r.Drop.Lng,
		r.PickupAddr, r.DropAddr, r.Price, r.Status, r.Settlement,
		r.CreatedAt, r.UpdatedAt)
	return mapErr(err)
}

func (p *PostgresRideStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	return scanRide(row)
}

// UpdateRideStatus is the serialization point for racing writers: the
// WHERE clause only matches while the ride is still in `from`, so of any
// set of concurrent callers exactly one sees its row updated.
func (p *PostgresRideStore) UpdateRideStatus(ctx context.Context, id string, from, to models.RideStatus, driverID string) (*models.Ride, error) {
	var d any
	if driverID != "" {
		d = driverID
	}
	row := p.db.QueryRowContext(ctx, `
		UPDATE rides
		SET status = $1, driver_id = COALESCE($2, driver_id), updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING `+rideColumns,
		to, d, id, from)
	r, err := scanRide(row)
	if errors.Is(err, ErrNotFound) {
		// Row missing or status moved under us; disambiguate for the caller.
		if _, getErr := p.GetRide(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	return r, err
}

func (p *PostgresRideStore) ActiveRideForUser(ctx context.Context, userID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE (rider_id = $1 OR driver_id = $1)
		  AND status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY created_at DESC
		LIMIT 1`, userID)
	r, err := scanRide(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return r, err
}

func (p *PostgresRideStore) RidesForUser(ctx context.Context, userID string) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE rider_id = $1 OR driver_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, mapErr(rows.Err())
}

func (p *PostgresRideStore) SetSettlement(ctx context.Context, rideID string, s models.SettlementStatus) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET settlement = $1, updated_at = NOW() WHERE id = $2`, s, rideID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
