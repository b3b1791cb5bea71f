package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoToken indicates authentication completed without yielding a usable token.
var ErrNoToken = errors.New("geocoder auth returned no access token")

// Config holds the external coordinate-conversion API endpoints and credentials.
type Config struct {
	AuthURL    string
	ConvertURL string
	Email      string
	Password   string
	Timeout    time.Duration
}

// Client calls the external coordinate-conversion service. Every Convert call
// performs its own authentication round-trip, so a token can never be stale;
// the client holds no mutable state and is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// New constructs a Client. A zero Timeout defaults to 10 seconds.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type convertResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Authenticate posts credentials to the token endpoint and returns the access
// token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{Email: c.cfg.Email, Password: c.cfg.Password})
	if err != nil {
		return "", fmt.Errorf("marshal auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocoder auth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geocoder auth failed with status %d: %s", resp.StatusCode, detail)
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if auth.AccessToken == "" {
		return "", ErrNoToken
	}
	return auth.AccessToken, nil
}

// Convert authenticates, then converts projected (x, y) coordinates into
// WGS84 latitude and longitude.
func (c *Client) Convert(ctx context.Context, x, y float64) (float64, float64, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return 0, 0, err
	}

	q := url.Values{}
	q.Set("X", strconv.FormatFloat(x, 'f', 6, 64))
	q.Set("Y", strconv.FormatFloat(y, 'f', 6, 64))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ConvertURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build convert request: %w", err)
	}
	// The upstream API expects the bare token, not a Bearer prefix.
	req.Header.Set("Authorization", token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("convert coordinates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, 0, fmt.Errorf("convert coordinates failed with status %d", resp.StatusCode)
	}

	var converted convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&converted); err != nil {
		return 0, 0, fmt.Errorf("decode convert response: %w", err)
	}
	return converted.Latitude, converted.Longitude, nil
}
