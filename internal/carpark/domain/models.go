package domain

import (
	"context"
	"time"
)

// CarPark is a registry entry keyed by the externally assigned car park number.
// Latitude and Longitude are populated together once geocoding succeeds; a car
// park without them cannot be ranked by distance.
type CarPark struct {
	CarParkNo           string
	Address             string
	XCoord              float64
	YCoord              float64
	Latitude            *float64
	Longitude           *float64
	CarParkType         string
	TypeOfParkingSystem string
	ShortTermParking    string
	FreeParking         string
	NightParking        string
	CarParkDecks        int
	GantryHeight        float64
	CarParkBasement     string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Geocoded reports whether the car park carries converted coordinates.
func (c CarPark) Geocoded() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// AvailabilitySnapshot is one observation of lot counts for a (car park, lot
// type) pair. The feed importer keeps a single row per pair, overwriting
// counts and timestamp in place on every refresh.
type AvailabilitySnapshot struct {
	ID             int64
	CarParkNo      string
	LotType        string
	TotalLots      int
	AvailableLots  int
	UpdateDatetime time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Registry persists car parks and answers the ranked nearest query.
type Registry interface {
	// SaveCarPark inserts or overwrites the row identified by CarParkNo.
	SaveCarPark(ctx context.Context, cp CarPark) error
	// CarParkExists reports whether the registry holds the given number.
	CarParkExists(ctx context.Context, carParkNo string) (bool, error)
	// FindNearestWithAvailability returns the requested 1-indexed page of car
	// parks whose latest availability snapshots sum to a positive available
	// count, ordered by ascending great-circle distance from (lat, lon).
	FindNearestWithAvailability(ctx context.Context, lat, lon float64, page, perPage int) ([]CarPark, error)
}

// AvailabilityStore persists per-lot-type availability observations.
type AvailabilityStore interface {
	// LatestAvailability returns the snapshot rows sharing the most recent
	// update timestamp recorded for the car park. Empty when none exist.
	LatestAvailability(ctx context.Context, carParkNo string) ([]AvailabilitySnapshot, error)
	// UpsertAvailability overwrites the row keyed by (CarParkNo, LotType) or
	// inserts one if absent.
	UpsertAvailability(ctx context.Context, snap AvailabilitySnapshot) error
}

// Store combines both persistence concerns behind a single backend.
type Store interface {
	Registry
	AvailabilityStore
}

// Geocoder converts projected registry coordinates into WGS84 degrees.
type Geocoder interface {
	Convert(ctx context.Context, x, y float64) (lat, lon float64, err error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock returns wall-clock UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
