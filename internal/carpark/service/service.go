package service

import (
	"context"
	"fmt"
	"time"

	"github.com/example/carparkd/internal/carpark/domain"
)

// Service answers "which car parks near a point currently have free lots".
// It is read-only: ranking comes from the store's nearest query and lot totals
// from the per-car-park latest snapshot set.
type Service struct {
	store domain.Store
}

// New constructs a Service around a store backend.
func New(store domain.Store) *Service {
	return &Service{store: store}
}

// NearbyCarPark is one ranked result with aggregated lot counts.
type NearbyCarPark struct {
	Address       string  `json:"address"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	TotalLots     int     `json:"totalLots"`
	AvailableLots int     `json:"availableLots"`
}

// FindNearest returns the requested page of eligible car parks ordered by
// ascending distance from (lat, lon). The ranking query and the per-item
// aggregation run without a shared transaction; a feed update landing between
// the two is an accepted eventual-consistency window.
func (s *Service) FindNearest(ctx context.Context, lat, lon float64, page, perPage int) ([]NearbyCarPark, error) {
	start := time.Now()
	parks, err := s.store.FindNearestWithAvailability(ctx, lat, lon, page, perPage)
	if err != nil {
		return nil, fmt.Errorf("find nearest car parks: %w", err)
	}

	results := make([]NearbyCarPark, 0, len(parks))
	for _, cp := range parks {
		total, available, err := s.Aggregate(ctx, cp.CarParkNo)
		if err != nil {
			return nil, err
		}
		item := NearbyCarPark{
			Address:       cp.Address,
			TotalLots:     total,
			AvailableLots: available,
		}
		if cp.Geocoded() {
			item.Latitude = *cp.Latitude
			item.Longitude = *cp.Longitude
		}
		results = append(results, item)
	}
	nearestLookupSeconds.Observe(time.Since(start).Seconds())
	return results, nil
}

// Aggregate sums total and available lots across the car park's latest
// snapshot set. A car park with no snapshots aggregates to zero.
func (s *Service) Aggregate(ctx context.Context, carParkNo string) (totalLots, availableLots int, err error) {
	snaps, err := s.store.LatestAvailability(ctx, carParkNo)
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate availability for %s: %w", carParkNo, err)
	}
	for _, snap := range snaps {
		totalLots += snap.TotalLots
		availableLots += snap.AvailableLots
	}
	return totalLots, availableLots, nil
}
