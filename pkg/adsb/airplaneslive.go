package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/skyradar/pkg/coordinates"
)

const (
	// AirplanesLiveBaseURL is the public airplanes.live v2 API
	AirplanesLiveBaseURL = "https://api.airplanes.live/v2"

	// airplanesLiveMaxRadiusNM is the largest radius the point endpoint accepts
	airplanesLiveMaxRadiusNM = 250.0
)

// AirplanesLiveClient implements the DataSource interface for airplanes.live API.
// API Documentation: https://airplanes.live/api-guide/
// Rate Limit: 1 request per second
type AirplanesLiveClient struct {
	// baseURL is the API base URL (default: https://api.airplanes.live/v2)
	baseURL string

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client

	// limiter spaces out API calls
	limiter *rate.Limiter

	now func() time.Time
}

// NewAirplanesLiveClient creates a new airplanes.live API client.
// minInterval is the minimum spacing between requests; 0 means one second.
func NewAirplanesLiveClient(baseURL string, timeout, minInterval time.Duration) *AirplanesLiveClient {
	if baseURL == "" {
		baseURL = AirplanesLiveBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &AirplanesLiveClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		now:     time.Now,
	}
}

// Name implements DataSource.
func (c *AirplanesLiveClient) Name() string {
	return "airplanes.live"
}

// FetchSnapshots returns all aircraft within the area.
// Uses the /point/[lat]/[lon]/[radius] endpoint; the radius is capped at 250 NM.
func (c *AirplanesLiveClient) FetchSnapshots(ctx context.Context, area Area) ([]Snapshot, error) {
	radiusNM := area.RadiusKm / coordinates.KmPerNauticalMile
	if radiusNM > airplanesLiveMaxRadiusNM {
		radiusNM = airplanesLiveMaxRadiusNM
	}
	if radiusNM < 1 {
		radiusNM = 1
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Provider: c.Name(), Err: err}
	}

	url := fmt.Sprintf("%s/point/%.4f/%.4f/%.0f", c.baseURL, area.Center.Latitude, area.Center.Longitude, radiusNM)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Provider: c.Name(), Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: c.Name(), Err: fmt.Errorf("failed to fetch aircraft data: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, newRateLimitError(resp, c.now())
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &TransportError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", string(body)),
		}
	}

	var apiResp airplanesLiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &DataFormatError{Reason: "failed to parse API response", Err: err}
	}
	if len(apiResp.Aircraft) > MaxBatchSize {
		return nil, &DataFormatError{
			Field:  "ac",
			Reason: fmt.Sprintf("batch of %d exceeds maximum %d", len(apiResp.Aircraft), MaxBatchSize),
		}
	}

	// "now" is milliseconds since the epoch on the provider side
	base := c.now().UTC()
	if apiResp.Now > 0 {
		base = time.UnixMilli(int64(apiResp.Now)).UTC()
	}

	snapshots := make([]Snapshot, 0, len(apiResp.Aircraft))
	for _, ac := range apiResp.Aircraft {
		snapshots = append(snapshots, convertAirplanesLiveAircraft(ac, base))
	}

	return snapshots, nil
}

// Close cleanly shuts down the client.
// For airplanes.live, this is a no-op as there are no persistent connections.
func (c *AirplanesLiveClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// airplanesLiveResponse represents the JSON response from airplanes.live API.
type airplanesLiveResponse struct {
	Aircraft []airplanesLiveAircraft `json:"ac"`
	Total    int                     `json:"total"`
	Now      float64                 `json:"now"`
}

// airplanesLiveAircraft represents a single aircraft in the airplanes.live API response.
// Field documentation: https://airplanes.live/adsb-field-explanations/
type airplanesLiveAircraft struct {
	// Hex is the ICAO Mode S hex code (e.g., "a12345")
	Hex string `json:"hex"`

	// Flight is the callsign/flight number
	Flight *string `json:"flight"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	// AltBaro is barometric altitude in feet, or the string "ground"
	AltBaro interface{} `json:"alt_baro"`

	// AltGeom is geometric (GPS) altitude in feet
	AltGeom interface{} `json:"alt_geom"`

	// Gs is ground speed in knots
	Gs *float64 `json:"gs"`

	// Track is ground track in degrees (0-360)
	Track *float64 `json:"track"`

	// BaroRate is barometric vertical rate in feet/minute
	BaroRate *float64 `json:"baro_rate"`

	Squawk *string `json:"squawk"`

	// Seen is seconds since any message, SeenPos since the last position
	Seen    *float64 `json:"seen"`
	SeenPos *float64 `json:"seen_pos"`
}

// convertAirplanesLiveAircraft converts an airplanes.live aircraft to a Snapshot.
// Imperial units are converted to SI; absent fields stay absent.
func convertAirplanesLiveAircraft(ac airplanesLiveAircraft, base time.Time) Snapshot {
	s := Snapshot{
		ICAO24:    ac.Hex,
		Callsign:  trimmedOpt(ac.Flight),
		Squawk:    trimmedOpt(ac.Squawk),
		Latitude:  finiteOpt(ac.Lat),
		Longitude: finiteOpt(ac.Lon),
		Heading:   finiteOpt(ac.Track),
	}

	// Altitude - prefer geometric (GPS) over barometric
	if alt, ground, ok := parseAltitude(ac.AltGeom); ok {
		s.Altitude = Some(alt * coordinates.FeetToMeters)
		s.OnGround = Some(ground)
	} else if alt, ground, ok := parseAltitude(ac.AltBaro); ok {
		s.Altitude = Some(alt * coordinates.FeetToMeters)
		s.OnGround = Some(ground)
	}

	if gs, ok := finiteOpt(ac.Gs).Get(); ok {
		s.GroundSpeed = Some(gs * coordinates.KnotsToMps)
	}
	if vr, ok := finiteOpt(ac.BaroRate).Get(); ok {
		s.VerticalRate = Some(vr * coordinates.FeetToMeters / 60.0)
	}

	seen := ac.SeenPos
	if seen == nil {
		seen = ac.Seen
	}
	s.Timestamp = base
	if seen != nil && finite(*seen) && *seen > 0 {
		s.Timestamp = base.Add(-time.Duration(*seen * float64(time.Second)))
	}

	return s
}

// parseAltitude extracts altitude in feet from a field that is either a
// number or the string "ground". ok is false when the value is unusable.
func parseAltitude(val interface{}) (feet float64, ground bool, ok bool) {
	switch v := val.(type) {
	case float64:
		if !finite(v) {
			return 0, false, false
		}
		return v, false, true
	case string:
		if v == "ground" {
			return 0, true, true
		}
	}
	return 0, false, false
}
