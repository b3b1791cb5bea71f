package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/carparkd/internal/carpark/domain"
	"github.com/example/carparkd/internal/carpark/handler"
	"github.com/example/carparkd/internal/carpark/repository"
	"github.com/example/carparkd/internal/carpark/service"
)

func newServer(t *testing.T, store *repository.Memory) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler.NewHTTP(service.New(store)).Router())
	t.Cleanup(srv.Close)
	return srv
}

func floatPtr(v float64) *float64 { return &v }

func TestNearestValidation(t *testing.T) {
	srv := newServer(t, repository.NewMemory())

	cases := []struct {
		name  string
		query string
	}{
		{"missing latitude", "longitude=103.8"},
		{"missing longitude", "latitude=1.3"},
		{"latitude out of range", "latitude=91&longitude=103.8"},
		{"longitude out of range", "latitude=1.3&longitude=-181"},
		{"non-numeric latitude", "latitude=abc&longitude=103.8"},
		{"zero page", "latitude=1.3&longitude=103.8&page=0"},
		{"negative per_page", "latitude=1.3&longitude=103.8&per_page=-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/carparks/nearest?" + tc.query)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestNearestBoundaryCoordinatesAccepted(t *testing.T) {
	srv := newServer(t, repository.NewMemory())

	resp, err := http.Get(srv.URL + "/carparks/nearest?latitude=-90&longitude=180")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var results []service.NearbyCarPark
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Empty(t, results)
}

func TestNearestReturnsRankedResults(t *testing.T) {
	store := repository.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.SaveCarPark(ctx, domain.CarPark{
		CarParkNo: "A", Address: "BLK 401 HOUGANG AVENUE 10",
		Latitude: floatPtr(1.37429), Longitude: floatPtr(103.896),
	}))
	require.NoError(t, store.UpsertAvailability(ctx, domain.AvailabilitySnapshot{
		CarParkNo: "A", LotType: "C", TotalLots: 693, AvailableLots: 182, UpdateDatetime: now,
	}))

	srv := newServer(t, store)
	resp, err := http.Get(srv.URL + "/carparks/nearest?latitude=1.37326&longitude=103.897")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var results []service.NearbyCarPark
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	require.Equal(t, "BLK 401 HOUGANG AVENUE 10", results[0].Address)
	require.Equal(t, 693, results[0].TotalLots)
	require.Equal(t, 182, results[0].AvailableLots)
}

func TestNearestDefaultsPageAndPerPage(t *testing.T) {
	store := repository.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	for _, no := range []string{"A", "B", "C"} {
		require.NoError(t, store.SaveCarPark(ctx, domain.CarPark{
			CarParkNo: no, Address: "BLK " + no,
			Latitude: floatPtr(1.30), Longitude: floatPtr(103.80),
		}))
		require.NoError(t, store.UpsertAvailability(ctx, domain.AvailabilitySnapshot{
			CarParkNo: no, LotType: "C", TotalLots: 10, AvailableLots: 5, UpdateDatetime: now,
		}))
	}

	srv := newServer(t, store)
	resp, err := http.Get(srv.URL + "/carparks/nearest?latitude=1.3&longitude=103.8")
	require.NoError(t, err)
	defer resp.Body.Close()

	var results []service.NearbyCarPark
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 3)
}
