package geocode_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/carparkd/internal/geocode"
)

func TestAuthenticateReturnsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "ops@example.com", creds["email"])
		require.Equal(t, "secret", creds["password"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "Bearer",
			"expires_in":   86400,
		})
	}))
	defer srv.Close()

	client := geocode.New(geocode.Config{
		AuthURL:  srv.URL,
		Email:    "ops@example.com",
		Password: "secret",
	})
	token, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
}

func TestAuthenticateNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := geocode.New(geocode.Config{AuthURL: srv.URL})
	_, err := client.Authenticate(context.Background())
	require.ErrorContains(t, err, "status 401")
}

func TestAuthenticateMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"token_type": "Bearer"})
	}))
	defer srv.Close()

	client := geocode.New(geocode.Config{AuthURL: srv.URL})
	_, err := client.Authenticate(context.Background())
	require.ErrorIs(t, err, geocode.ErrNoToken)
}

func TestConvertAuthenticatesPerCall(t *testing.T) {
	var authCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, _ *http.Request) {
		authCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-abc"})
	})
	mux.HandleFunc("/convert", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok-abc", r.Header.Get("Authorization"))
		require.Equal(t, "30314.793600", r.URL.Query().Get("X"))
		require.Equal(t, "31490.494200", r.URL.Query().Get("Y"))
		_ = json.NewEncoder(w).Encode(map[string]any{"latitude": 1.30106, "longitude": 103.85412})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := geocode.New(geocode.Config{
		AuthURL:    srv.URL + "/auth",
		ConvertURL: srv.URL + "/convert",
	})

	lat, lon, err := client.Convert(context.Background(), 30314.7936, 31490.4942)
	require.NoError(t, err)
	require.InDelta(t, 1.30106, lat, 1e-9)
	require.InDelta(t, 103.85412, lon, 1e-9)

	_, _, err = client.Convert(context.Background(), 30314.7936, 31490.4942)
	require.NoError(t, err)
	require.EqualValues(t, 2, authCalls.Load())
}

func TestConvertFailsWhenAuthFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := geocode.New(geocode.Config{AuthURL: srv.URL, ConvertURL: srv.URL})
	_, _, err := client.Convert(context.Background(), 1, 2)
	require.Error(t, err)
}

func TestConvertNon2xx(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok"})
	})
	mux.HandleFunc("/convert", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := geocode.New(geocode.Config{AuthURL: srv.URL + "/auth", ConvertURL: srv.URL + "/convert"})
	_, _, err := client.Convert(context.Background(), 1, 2)
	require.ErrorContains(t, err, "status 502")
}
