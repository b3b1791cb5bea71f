package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/carparkd/internal/carpark/domain"
)

// Memory provides an in-memory domain.Store suitable for tests and local
// demos. Ranking uses the same haversine metric as the SQL store.
type Memory struct {
	mu     sync.RWMutex
	parks  map[string]domain.CarPark
	snaps  []domain.AvailabilitySnapshot
	nextID int64
	clock  domain.Clock
}

// NewMemory constructs an empty store.
func NewMemory() *Memory {
	return &Memory{parks: make(map[string]domain.CarPark), nextID: 1, clock: domain.SystemClock{}}
}

// SaveCarPark inserts or overwrites the row, preserving created_at on rewrite.
func (m *Memory) SaveCarPark(_ context.Context, cp domain.CarPark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if existing, ok := m.parks[cp.CarParkNo]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.parks[cp.CarParkNo] = cp
	return nil
}

// CarParkExists implements domain.Registry.
func (m *Memory) CarParkExists(_ context.Context, carParkNo string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.parks[carParkNo]
	return ok, nil
}

// GetCarPark returns a stored car park (for tests).
func (m *Memory) GetCarPark(carParkNo string) (domain.CarPark, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.parks[carParkNo]
	return cp, ok
}

// Count returns the number of stored car parks (for tests).
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.parks)
}

// FindNearestWithAvailability mirrors the SQL contract: latest-timestamp
// snapshot sums must be positive, ordering is ascending haversine distance
// with a car park number tie-break, pagination is 1-indexed.
func (m *Memory) FindNearestWithAvailability(_ context.Context, lat, lon float64, page, perPage int) ([]domain.CarPark, error) {
	if page < 1 || perPage < 1 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type ranked struct {
		cp   domain.CarPark
		dist float64
	}
	var eligible []ranked
	for no, cp := range m.parks {
		if !cp.Geocoded() {
			continue
		}
		available := 0
		for _, s := range m.latestLocked(no) {
			available += s.AvailableLots
		}
		if available <= 0 {
			continue
		}
		eligible = append(eligible, ranked{cp: cp, dist: haversineKM(lat, lon, *cp.Latitude, *cp.Longitude)})
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].dist != eligible[j].dist {
			return eligible[i].dist < eligible[j].dist
		}
		return eligible[i].cp.CarParkNo < eligible[j].cp.CarParkNo
	})

	offset := (page - 1) * perPage
	if offset >= len(eligible) {
		return nil, nil
	}
	end := offset + perPage
	if end > len(eligible) {
		end = len(eligible)
	}
	out := make([]domain.CarPark, 0, end-offset)
	for _, r := range eligible[offset:end] {
		out = append(out, r.cp)
	}
	return out, nil
}

// LatestAvailability returns the snapshot rows at the most recent timestamp.
func (m *Memory) LatestAvailability(_ context.Context, carParkNo string) ([]domain.AvailabilitySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestLocked(carParkNo), nil
}

func (m *Memory) latestLocked(carParkNo string) []domain.AvailabilitySnapshot {
	var max time.Time
	for _, s := range m.snaps {
		if s.CarParkNo == carParkNo && s.UpdateDatetime.After(max) {
			max = s.UpdateDatetime
		}
	}
	if max.IsZero() {
		return nil
	}
	var out []domain.AvailabilitySnapshot
	for _, s := range m.snaps {
		if s.CarParkNo == carParkNo && s.UpdateDatetime.Equal(max) {
			out = append(out, s)
		}
	}
	return out
}

// UpsertAvailability overwrites the row keyed by (car park, lot type).
func (m *Memory) UpsertAvailability(_ context.Context, snap domain.AvailabilitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for i := range m.snaps {
		if m.snaps[i].CarParkNo == snap.CarParkNo && m.snaps[i].LotType == snap.LotType {
			m.snaps[i].TotalLots = snap.TotalLots
			m.snaps[i].AvailableLots = snap.AvailableLots
			m.snaps[i].UpdateDatetime = snap.UpdateDatetime
			m.snaps[i].UpdatedAt = now
			return nil
		}
	}
	snap.ID = m.nextID
	m.nextID++
	snap.CreatedAt = now
	snap.UpdatedAt = now
	m.snaps = append(m.snaps, snap)
	return nil
}

// SnapshotCount returns the number of stored snapshot rows (for tests).
func (m *Memory) SnapshotCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0
	dlat := toRadians(lat2 - lat1)
	dlon := toRadians(lon2 - lon1)
	sinDlat := math.Sin(dlat / 2)
	sinDlon := math.Sin(dlon / 2)
	a := sinDlat*sinDlat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinDlon*sinDlon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
