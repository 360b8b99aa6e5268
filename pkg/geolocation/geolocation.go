// Package geolocation looks up the observer position from the public IP
// address. Failures are never fatal: Resolve falls back to a known location.
package geolocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/skyradar/pkg/coordinates"
)

// DefaultURL is the ip-api.com JSON endpoint.
const DefaultURL = "http://ip-api.com/json"

// ErrGeolocationUnavailable reports that no location could be determined.
var ErrGeolocationUnavailable = errors.New("geolocation unavailable")

// Location is a looked-up observer position.
type Location struct {
	coordinates.Geographic

	// Name is "City, Country" when the service returns it
	Name string
}

// Locator determines the observer location.
type Locator interface {
	Locate(ctx context.Context) (Location, error)
}

// IPAPIClient implements Locator with the ip-api.com JSON API.
type IPAPIClient struct {
	url        string
	httpClient *http.Client
}

// NewIPAPIClient creates a client. An empty url uses DefaultURL.
func NewIPAPIClient(url string, timeout time.Duration) *IPAPIClient {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IPAPIClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ipAPIResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	City    string   `json:"city"`
	Country string   `json:"country"`
}

// Locate implements Locator. Every failure wraps ErrGeolocationUnavailable.
func (c *IPAPIClient) Locate(ctx context.Context) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrGeolocationUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("%w: request failed: %v", ErrGeolocationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Location{}, fmt.Errorf("%w: HTTP %d: %s", ErrGeolocationUnavailable, resp.StatusCode, string(body))
	}

	var payload ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Location{}, fmt.Errorf("%w: failed to parse response: %v", ErrGeolocationUnavailable, err)
	}
	if payload.Status != "" && payload.Status != "success" {
		return Location{}, fmt.Errorf("%w: %s", ErrGeolocationUnavailable, payload.Message)
	}
	if payload.Lat == nil || payload.Lon == nil {
		return Location{}, fmt.Errorf("%w: response has no coordinates", ErrGeolocationUnavailable)
	}

	loc := Location{Geographic: coordinates.Geographic{Latitude: *payload.Lat, Longitude: *payload.Lon}}
	if !loc.Valid() {
		return Location{}, fmt.Errorf("%w: invalid coordinates %f, %f", ErrGeolocationUnavailable, *payload.Lat, *payload.Lon)
	}

	switch {
	case payload.City != "" && payload.Country != "":
		loc.Name = payload.City + ", " + payload.Country
	case payload.City != "":
		loc.Name = payload.City
	default:
		loc.Name = payload.Country
	}
	return loc, nil
}

// Resolve asks locator for the current location and returns fallback when it
// fails. The error is returned alongside the fallback so callers can report
// it; the returned location is always usable.
func Resolve(ctx context.Context, locator Locator, fallback Location, logger zerolog.Logger) (Location, error) {
	if locator == nil {
		return fallback, ErrGeolocationUnavailable
	}

	loc, err := locator.Locate(ctx)
	if err != nil {
		if !errors.Is(err, ErrGeolocationUnavailable) {
			err = fmt.Errorf("%w: %v", ErrGeolocationUnavailable, err)
		}
		logger.Warn().Err(err).
			Float64("fallback_lat", fallback.Latitude).
			Float64("fallback_lon", fallback.Longitude).
			Msg("Geolocation failed, using configured location")
		return fallback, err
	}

	logger.Info().
		Float64("lat", loc.Latitude).
		Float64("lon", loc.Longitude).
		Str("name", loc.Name).
		Msg("Observer located")
	return loc, nil
}
