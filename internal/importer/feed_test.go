package importer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/carparkd/internal/carpark/domain"
	"github.com/example/carparkd/internal/carpark/repository"
	"github.com/example/carparkd/internal/importer"
)

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func registryWith(t *testing.T, numbers ...string) *repository.Memory {
	t.Helper()
	store := repository.NewMemory()
	for _, no := range numbers {
		lat, lon := 1.30, 103.80
		require.NoError(t, store.SaveCarPark(context.Background(), domain.CarPark{
			CarParkNo: no, Latitude: &lat, Longitude: &lon,
		}))
	}
	return store
}

func TestRefreshUpsertsKnownCarParks(t *testing.T) {
	body := `{"items":[{"timestamp":"2024-03-05T08:30:00+08:00","carpark_data":[
		{"carpark_number":"HE12","carpark_info":[
			{"lot_type":"C","total_lots":"105","lots_available":"33"},
			{"lot_type":"Y","total_lots":"12","lots_available":"4"}]}]}]}`
	srv := feedServer(t, body)
	store := registryWith(t, "HE12")
	feed := importer.NewFeed(store, nil, nil, importer.FeedConfig{URL: srv.URL})

	result, err := feed.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Zero(t, result.Skipped)

	snaps, err := store.LatestAvailability(context.Background(), "HE12")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	want := time.Date(2024, 3, 5, 8, 30, 0, 0, time.FixedZone("", 8*3600))
	for _, s := range snaps {
		require.True(t, s.UpdateDatetime.Equal(want))
	}
}

func TestRefreshSkipsUnknownCarParks(t *testing.T) {
	body := `{"items":[{"timestamp":"2024-03-05T08:30:00+08:00","carpark_data":[
		{"carpark_number":"KNOWN","carpark_info":[{"lot_type":"C","total_lots":"10","lots_available":"5"}]},
		{"carpark_number":"GHOST","carpark_info":[{"lot_type":"C","total_lots":"10","lots_available":"5"}]}]}]}`
	srv := feedServer(t, body)
	store := registryWith(t, "KNOWN")
	feed := importer.NewFeed(store, nil, nil, importer.FeedConfig{URL: srv.URL})

	result, err := feed.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Processed)
	require.Equal(t, 1, result.Skipped)

	// Nothing persisted for the unknown car park.
	snaps, err := store.LatestAvailability(context.Background(), "GHOST")
	require.NoError(t, err)
	require.Empty(t, snaps)
	require.Equal(t, 1, store.SnapshotCount())
}

func TestRefreshTwiceOverwritesByKey(t *testing.T) {
	first := `{"items":[{"timestamp":"2024-03-05T08:00:00+08:00","carpark_data":[
		{"carpark_number":"HE12","carpark_info":[{"lot_type":"C","total_lots":"105","lots_available":"40"}]}]}]}`
	second := `{"items":[{"timestamp":"2024-03-05T09:00:00+08:00","carpark_data":[
		{"carpark_number":"HE12","carpark_info":[{"lot_type":"C","total_lots":"105","lots_available":"12"}]}]}]}`

	store := registryWith(t, "HE12")

	srv1 := feedServer(t, first)
	_, err := importer.NewFeed(store, nil, nil, importer.FeedConfig{URL: srv1.URL}).Refresh(context.Background())
	require.NoError(t, err)

	srv2 := feedServer(t, second)
	_, err = importer.NewFeed(store, nil, nil, importer.FeedConfig{URL: srv2.URL}).Refresh(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, store.SnapshotCount())
	snaps, err := store.LatestAvailability(context.Background(), "HE12")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, 12, snaps[0].AvailableLots)
	want := time.Date(2024, 3, 5, 9, 0, 0, 0, time.FixedZone("", 8*3600))
	require.True(t, snaps[0].UpdateDatetime.Equal(want))
}

func TestRefreshAbortsOnMalformedTimestamp(t *testing.T) {
	body := `{"items":[
		{"timestamp":"2024-03-05T08:00:00+08:00","carpark_data":[
			{"carpark_number":"HE12","carpark_info":[{"lot_type":"C","total_lots":"10","lots_available":"5"}]}]},
		{"timestamp":"not-a-timestamp","carpark_data":[
			{"carpark_number":"HE12","carpark_info":[{"lot_type":"C","total_lots":"10","lots_available":"9"}]}]}]}`
	srv := feedServer(t, body)
	store := registryWith(t, "HE12")
	feed := importer.NewFeed(store, nil, nil, importer.FeedConfig{URL: srv.URL})

	_, err := feed.Refresh(context.Background())
	require.ErrorContains(t, err, "parse feed timestamp")

	// Upserts applied before the failure stay committed.
	snaps, lerr := store.LatestAvailability(context.Background(), "HE12")
	require.NoError(t, lerr)
	require.Len(t, snaps, 1)
	require.Equal(t, 5, snaps[0].AvailableLots)
}

func TestRefreshAbortsOnNonNumericLots(t *testing.T) {
	body := `{"items":[{"timestamp":"2024-03-05T08:00:00+08:00","carpark_data":[
		{"carpark_number":"HE12","carpark_info":[{"lot_type":"C","total_lots":"lots","lots_available":"5"}]}]}]}`
	srv := feedServer(t, body)
	feed := importer.NewFeed(registryWith(t, "HE12"), nil, nil, importer.FeedConfig{URL: srv.URL})

	_, err := feed.Refresh(context.Background())
	require.ErrorContains(t, err, "parse total lots")
}

func TestRefreshFailsOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	feed := importer.NewFeed(repository.NewMemory(), nil, nil, importer.FeedConfig{URL: srv.URL})
	_, err := feed.Refresh(context.Background())
	require.ErrorContains(t, err, "status 503")
}
