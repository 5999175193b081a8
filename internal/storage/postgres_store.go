package storage

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

const orderColumns = `id, client_id, client_name, driver_id, driver_name, vehicle_type,
	origin_lat, origin_lon, dest_lat, dest_lon, passenger_count, departure_time,
	distance, price, status, created_at, completed_at`

func (p *PostgresStore) Create(ctx context.Context, o *models.Order) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO orders(id, client_id, client_name, driver_id, driver_name, vehicle_type,
		origin_lat, origin_lon, dest_lat, dest_lon, passenger_count, departure_time, distance, price, status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, o.ClientID, o.ClientName, o.DriverID, o.DriverName, string(o.VehicleType),
		o.Origin.Lat, o.Origin.Lon, o.Destination.Lat, o.Destination.Lon,
		o.PassengerCount, o.DepartureTime, o.Distance, o.Price, string(o.Status), o.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	return scanOrder(row)
}

func (p *PostgresStore) UpdateDetails(ctx context.Context, id string, patch DetailsPatch) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE orders
		SET passenger_count=$1, vehicle_type=$2, departure_time=$3, price=$4
		WHERE id=$5 AND status=$6
		RETURNING `+orderColumns,
		patch.PassengerCount, string(patch.VehicleType), patch.DepartureTime, patch.Price,
		id, string(models.StatusWaiting))
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ConditionalTransition is a single atomic "update where id and status" so
// concurrent claimers race inside the database, not the application.
func (p *PostgresStore) ConditionalTransition(ctx context.Context, id string, expected models.Status, patch TransitionPatch) (*models.Order, bool, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE orders
		SET status=$1,
		    driver_id=COALESCE(NULLIF($2,''), driver_id),
		    driver_name=COALESCE(NULLIF($3,''), driver_name),
		    completed_at=COALESCE($4, completed_at)
		WHERE id=$5 AND status=$6
		RETURNING `+orderColumns,
		string(patch.Status), patch.DriverID, patch.DriverName, patch.CompletedAt,
		id, string(expected))
	o, err := scanOrder(row)
	if errors.Is(err, ErrNotFound) {
		// predicate did not hold; the caller decides between lost-race and
		// genuinely missing order
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (p *PostgresStore) PendingForVehicle(ctx context.Context, vehicle models.VehicleType) ([]*models.Order, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE status=$1 AND vehicle_type=$2`,
		string(models.StatusWaiting), string(vehicle))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var driverID, driverName, vehicle sql.NullString
	var departure, completed sql.NullTime
	err := row.Scan(
		&o.ID, &o.ClientID, &o.ClientName, &driverID, &driverName, &vehicle,
		&o.Origin.Lat, &o.Origin.Lon, &o.Destination.Lat, &o.Destination.Lon,
		&o.PassengerCount, &departure, &o.Distance, &o.Price, &o.Status,
		&o.CreatedAt, &completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.DriverID = driverID.String
	o.DriverName = driverName.String
	o.VehicleType = models.VehicleType(vehicle.String)
	if departure.Valid {
		t := departure.Time
		o.DepartureTime = &t
	}
	if completed.Valid {
		t := completed.Time
		o.CompletedAt = &t
	}
	return &o, nil
}
