package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// OpenSkyBaseURL is the public OpenSky Network REST API
const OpenSkyBaseURL = "https://opensky-network.org/api"

// OpenSkyClient implements the DataSource interface for the OpenSky Network
// /states/all endpoint, queried with a bounding box around the observer.
// Anonymous access is allowed; credentials raise the daily quota.
type OpenSkyClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// OpenSkyConfig configures an OpenSkyClient.
type OpenSkyConfig struct {
	BaseURL  string
	Username string
	Password string

	// Timeout per request (default: 30 seconds)
	Timeout time.Duration

	// MinInterval between requests (default: 10 seconds, the anonymous resolution)
	MinInterval time.Duration
}

// NewOpenSkyClient creates an OpenSky client.
func NewOpenSkyClient(cfg OpenSkyConfig) *OpenSkyClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenSkyBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 10 * time.Second
	}
	return &OpenSkyClient{
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		now:        time.Now,
	}
}

// Name implements DataSource.
func (c *OpenSkyClient) Name() string {
	return "opensky"
}

// Close implements DataSource.
func (c *OpenSkyClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// openSkyResponse is the /states/all payload. Each state vector is a
// heterogeneous JSON array; see https://openskynetwork.github.io/opensky-api/rest.html
type openSkyResponse struct {
	Time   int64   `json:"time"`
	States [][]any `json:"states"`
}

// State vector indices
const (
	osICAO24 = iota
	osCallsign
	osOriginCountry
	osTimePosition
	osLastContact
	osLongitude
	osLatitude
	osBaroAltitude
	osOnGround
	osVelocity
	osTrueTrack
	osVerticalRate
	osSensors
	osGeoAltitude
	osSquawk
	osSPI
	osPositionSource
)

// FetchSnapshots implements DataSource.
func (c *OpenSkyClient) FetchSnapshots(ctx context.Context, area Area) ([]Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Provider: c.Name(), Err: err}
	}

	latMin, latMax, lonMin, lonMax := area.BoundingBox()
	q := url.Values{}
	q.Set("lamin", strconv.FormatFloat(latMin, 'f', 4, 64))
	q.Set("lamax", strconv.FormatFloat(latMax, 'f', 4, 64))
	q.Set("lomin", strconv.FormatFloat(lonMin, 'f', 4, 64))
	q.Set("lomax", strconv.FormatFloat(lonMax, 'f', 4, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/states/all?"+q.Encode(), nil)
	if err != nil {
		return nil, &TransportError{Provider: c.Name(), Err: err}
	}
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: c.Name(), Err: fmt.Errorf("request failed: %w", err)}
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

	var payload openSkyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &DataFormatError{Reason: "failed to parse states response", Err: err}
	}
	if len(payload.States) > MaxBatchSize {
		return nil, &DataFormatError{
			Field:  "states",
			Reason: fmt.Sprintf("batch of %d exceeds maximum %d", len(payload.States), MaxBatchSize),
		}
	}

	fallback := c.now().UTC()
	if payload.Time > 0 {
		fallback = time.Unix(payload.Time, 0).UTC()
	}

	snapshots := make([]Snapshot, 0, len(payload.States))
	for _, state := range payload.States {
		snapshots = append(snapshots, convertOpenSkyState(state, fallback))
	}
	return snapshots, nil
}

// convertOpenSkyState maps one state vector to a Snapshot.
// Short or mistyped vectors produce a snapshot with whatever could be read;
// one without an ICAO address is rejected downstream and counted there.
func convertOpenSkyState(state []any, fallback time.Time) Snapshot {
	s := Snapshot{
		ICAO24:        stateString(state, osICAO24).OrElse(""),
		Callsign:      stateString(state, osCallsign),
		OriginCountry: stateString(state, osOriginCountry),
		Longitude:     stateFloat(state, osLongitude),
		Latitude:      stateFloat(state, osLatitude),
		Altitude:      stateFloat(state, osBaroAltitude),
		OnGround:      stateBool(state, osOnGround),
		GroundSpeed:   stateFloat(state, osVelocity),
		Heading:       stateFloat(state, osTrueTrack),
		VerticalRate:  stateFloat(state, osVerticalRate),
		Squawk:        stateString(state, osSquawk),
		Timestamp:     fallback,
	}

	if !s.Altitude.IsSet() {
		s.Altitude = stateFloat(state, osGeoAltitude)
	}

	if ts, ok := stateFloat(state, osTimePosition).Get(); ok && ts > 0 {
		s.Timestamp = time.Unix(int64(ts), 0).UTC()
	} else if ts, ok := stateFloat(state, osLastContact).Get(); ok && ts > 0 {
		s.Timestamp = time.Unix(int64(ts), 0).UTC()
	}

	return s
}

func stateFloat(state []any, i int) Optional[float64] {
	if i >= len(state) {
		return None[float64]()
	}
	if v, ok := state[i].(float64); ok && finite(v) {
		return Some(v)
	}
	return None[float64]()
}

func stateString(state []any, i int) Optional[string] {
	if i >= len(state) {
		return None[string]()
	}
	if v, ok := state[i].(string); ok {
		return trimmedOpt(&v)
	}
	return None[string]()
}

func stateBool(state []any, i int) Optional[bool] {
	if i >= len(state) {
		return None[bool]()
	}
	if v, ok := state[i].(bool); ok {
		return Some(v)
	}
	return None[bool]()
}
