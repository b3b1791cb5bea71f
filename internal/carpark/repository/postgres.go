package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/carparkd/internal/carpark/domain"
)

// Postgres implements domain.Store on top of database/sql with the pgx stdlib
// driver. The nearest query ranks by great-circle (haversine) distance against
// the exact stored coordinates; there is no bounding-box pre-filter.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs the store around an open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS car_parks (
	car_park_no            TEXT PRIMARY KEY,
	address                TEXT NOT NULL DEFAULT '',
	x_coord                DOUBLE PRECISION NOT NULL DEFAULT 0,
	y_coord                DOUBLE PRECISION NOT NULL DEFAULT 0,
	latitude               DOUBLE PRECISION,
	longitude              DOUBLE PRECISION,
	car_park_type          TEXT NOT NULL DEFAULT '',
	type_of_parking_system TEXT NOT NULL DEFAULT '',
	short_term_parking     TEXT NOT NULL DEFAULT '',
	free_parking           TEXT NOT NULL DEFAULT '',
	night_parking          TEXT NOT NULL DEFAULT '',
	car_park_decks         INTEGER NOT NULL DEFAULT 0,
	gantry_height          DOUBLE PRECISION NOT NULL DEFAULT 0,
	car_park_basement      TEXT NOT NULL DEFAULT '',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS car_park_availability (
	id              BIGSERIAL PRIMARY KEY,
	car_park_no     TEXT NOT NULL,
	lot_type        TEXT NOT NULL,
	total_lots      INTEGER NOT NULL DEFAULT 0,
	available_lots  INTEGER NOT NULL DEFAULT 0,
	update_datetime TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_availability_carpark_lot
	ON car_park_availability (car_park_no, lot_type);
`

// EnsureSchema creates both tables if they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// nearestQuery restricts eligibility to car parks whose snapshot rows at their
// most recent update_datetime sum to a positive available count, then orders
// by haversine distance (Earth radius 6371 km). Ties break on car_park_no so
// the ordering is deterministic. Ungeocoded rows are excluded because their
// distance is undefined.
const nearestQuery = `
SELECT cp.car_park_no, cp.address, cp.x_coord, cp.y_coord, cp.latitude, cp.longitude,
       cp.car_park_type, cp.type_of_parking_system, cp.short_term_parking,
       cp.free_parking, cp.night_parking, cp.car_park_decks, cp.gantry_height,
       cp.car_park_basement, cp.created_at, cp.updated_at
FROM car_parks cp
JOIN (
    SELECT car_park_no, SUM(available_lots) AS total_available
    FROM car_park_availability
    WHERE (car_park_no, update_datetime) IN (
        SELECT car_park_no, MAX(update_datetime)
        FROM car_park_availability
        GROUP BY car_park_no
    )
    GROUP BY car_park_no
    HAVING SUM(available_lots) > 0
) av ON cp.car_park_no = av.car_park_no
WHERE cp.latitude IS NOT NULL AND cp.longitude IS NOT NULL
ORDER BY (
    6371 * acos(
        cos(radians($1)) * cos(radians(cp.latitude)) *
        cos(radians(cp.longitude) - radians($2)) +
        sin(radians($1)) * sin(radians(cp.latitude))
    )
), cp.car_park_no
LIMIT $3 OFFSET $4`

// FindNearestWithAvailability implements domain.Registry. The page argument is
// 1-indexed; page sizes below 1 are rejected by the boundary layer.
func (p *Postgres) FindNearestWithAvailability(ctx context.Context, lat, lon float64, page, perPage int) ([]domain.CarPark, error) {
	offset := (page - 1) * perPage
	rows, err := p.db.QueryContext(ctx, nearestQuery, lat, lon, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("query nearest car parks: %w", err)
	}
	defer rows.Close()

	var parks []domain.CarPark
	for rows.Next() {
		cp, err := scanCarPark(rows)
		if err != nil {
			return nil, err
		}
		parks = append(parks, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest car parks: %w", err)
	}
	return parks, nil
}

// SaveCarPark inserts or overwrites by car_park_no. created_at is set on first
// insert only; updated_at moves on every write.
func (p *Postgres) SaveCarPark(ctx context.Context, cp domain.CarPark) error {
	const q = `
INSERT INTO car_parks (
	car_park_no, address, x_coord, y_coord, latitude, longitude,
	car_park_type, type_of_parking_system, short_term_parking,
	free_parking, night_parking, car_park_decks, gantry_height, car_park_basement
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (car_park_no) DO UPDATE SET
	address = EXCLUDED.address,
	x_coord = EXCLUDED.x_coord,
	y_coord = EXCLUDED.y_coord,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	car_park_type = EXCLUDED.car_park_type,
	type_of_parking_system = EXCLUDED.type_of_parking_system,
	short_term_parking = EXCLUDED.short_term_parking,
	free_parking = EXCLUDED.free_parking,
	night_parking = EXCLUDED.night_parking,
	car_park_decks = EXCLUDED.car_park_decks,
	gantry_height = EXCLUDED.gantry_height,
	car_park_basement = EXCLUDED.car_park_basement,
	updated_at = now()`

	var lat, lon sql.NullFloat64
	if cp.Latitude != nil {
		lat = sql.NullFloat64{Float64: *cp.Latitude, Valid: true}
	}
	if cp.Longitude != nil {
		lon = sql.NullFloat64{Float64: *cp.Longitude, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, q,
		cp.CarParkNo, cp.Address, cp.XCoord, cp.YCoord, lat, lon,
		cp.CarParkType, cp.TypeOfParkingSystem, cp.ShortTermParking,
		cp.FreeParking, cp.NightParking, cp.CarParkDecks, cp.GantryHeight, cp.CarParkBasement,
	)
	if err != nil {
		return fmt.Errorf("save car park %s: %w", cp.CarParkNo, err)
	}
	return nil
}

// CarParkExists implements domain.Registry.
func (p *Postgres) CarParkExists(ctx context.Context, carParkNo string) (bool, error) {
	var exists bool
	row := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM car_parks WHERE car_park_no = $1)`, carParkNo)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check car park %s: %w", carParkNo, err)
	}
	return exists, nil
}

// LatestAvailability returns every snapshot row at the car park's maximum
// update_datetime, one per lot type in the usual case.
func (p *Postgres) LatestAvailability(ctx context.Context, carParkNo string) ([]domain.AvailabilitySnapshot, error) {
	const q = `
SELECT id, car_park_no, lot_type, total_lots, available_lots, update_datetime, created_at, updated_at
FROM car_park_availability
WHERE car_park_no = $1
  AND update_datetime = (
      SELECT MAX(update_datetime) FROM car_park_availability WHERE car_park_no = $1
  )
ORDER BY lot_type`

	rows, err := p.db.QueryContext(ctx, q, carParkNo)
	if err != nil {
		return nil, fmt.Errorf("query availability for %s: %w", carParkNo, err)
	}
	defer rows.Close()

	var snaps []domain.AvailabilitySnapshot
	for rows.Next() {
		var s domain.AvailabilitySnapshot
		if err := rows.Scan(&s.ID, &s.CarParkNo, &s.LotType, &s.TotalLots, &s.AvailableLots,
			&s.UpdateDatetime, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability: %w", err)
	}
	return snaps, nil
}

// UpsertAvailability overwrites the row keyed by (car_park_no, lot_type),
// inserting when no row exists. An UPDATE-then-INSERT keeps the store correct
// even where historical duplicate rows predate the single-row policy.
func (p *Postgres) UpsertAvailability(ctx context.Context, snap domain.AvailabilitySnapshot) error {
	const update = `
UPDATE car_park_availability
SET total_lots = $3, available_lots = $4, update_datetime = $5, updated_at = now()
WHERE car_park_no = $1 AND lot_type = $2`

	res, err := p.db.ExecContext(ctx, update,
		snap.CarParkNo, snap.LotType, snap.TotalLots, snap.AvailableLots, snap.UpdateDatetime)
	if err != nil {
		return fmt.Errorf("update availability %s/%s: %w", snap.CarParkNo, snap.LotType, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update availability rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	const insert = `
INSERT INTO car_park_availability (car_park_no, lot_type, total_lots, available_lots, update_datetime)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := p.db.ExecContext(ctx, insert,
		snap.CarParkNo, snap.LotType, snap.TotalLots, snap.AvailableLots, snap.UpdateDatetime); err != nil {
		return fmt.Errorf("insert availability %s/%s: %w", snap.CarParkNo, snap.LotType, err)
	}
	return nil
}

// Ping reports backend reachability for health checks.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCarPark(row rowScanner) (domain.CarPark, error) {
	var cp domain.CarPark
	var lat, lon sql.NullFloat64
	err := row.Scan(&cp.CarParkNo, &cp.Address, &cp.XCoord, &cp.YCoord, &lat, &lon,
		&cp.CarParkType, &cp.TypeOfParkingSystem, &cp.ShortTermParking,
		&cp.FreeParking, &cp.NightParking, &cp.CarParkDecks, &cp.GantryHeight,
		&cp.CarParkBasement, &cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return domain.CarPark{}, fmt.Errorf("scan car park: %w", err)
	}
	if lat.Valid {
		cp.Latitude = &lat.Float64
	}
	if lon.Valid {
		cp.Longitude = &lon.Float64
	}
	return cp, nil
}
