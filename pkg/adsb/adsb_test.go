package adsb

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unklstewy/skyradar/pkg/coordinates"
)

// TestNewAirplanesLiveClient tests client construction.
func TestNewAirplanesLiveClient(t *testing.T) {
	client := NewAirplanesLiveClient("https://api.test.com", 0, 0)

	if client.baseURL != "https://api.test.com" {
		t.Errorf("Expected baseURL https://api.test.com, got %s", client.baseURL)
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", client.httpClient.Timeout)
	}
	if client.Name() != "airplanes.live" {
		t.Errorf("Unexpected name %q", client.Name())
	}

	if def := NewAirplanesLiveClient("", 0, 0); def.baseURL != AirplanesLiveBaseURL {
		t.Errorf("Expected default base URL, got %s", def.baseURL)
	}
}

// TestAirplanesLiveFetch tests fetching aircraft within an area.
func TestAirplanesLiveFetch(t *testing.T) {
	area := Area{
		Center:   coordinates.Geographic{Latitude: 35.0, Longitude: -80.0},
		RadiusKm: 100 * coordinates.KmPerNauticalMile,
	}

	t.Run("Successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expectedPath := "/point/35.0000/-80.0000/100"
			if r.URL.Path != expectedPath {
				t.Errorf("Expected path %s, got %s", expectedPath, r.URL.Path)
			}

			response := airplanesLiveResponse{
				Now: 1700000000000,
				Aircraft: []airplanesLiveAircraft{
					{
						Hex:      "a12345",
						Flight:   strPtr("UAL123  "),
						Lat:      floatPtr(35.5),
						Lon:      floatPtr(-80.5),
						AltBaro:  30000.0,
						Gs:       floatPtr(450.0),
						Track:    floatPtr(0.0),
						BaroRate: floatPtr(-600.0),
						SeenPos:  floatPtr(2.0),
					},
				},
				Total: 1,
			}
			json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(server.URL, 0, 0)
		snaps, err := client.FetchSnapshots(context.Background(), area)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(snaps) != 1 {
			t.Fatalf("Expected 1 aircraft, got %d", len(snaps))
		}

		s := snaps[0]
		if s.ICAO24 != "a12345" {
			t.Errorf("Expected ICAO a12345, got %s", s.ICAO24)
		}
		if cs, _ := s.Callsign.Get(); cs != "UAL123" {
			t.Errorf("Expected trimmed callsign UAL123, got %q", cs)
		}
		if alt, ok := s.Altitude.Get(); !ok || math.Abs(alt-9144.0) > 0.01 {
			t.Errorf("Expected altitude 9144 m, got %v (set=%v)", alt, ok)
		}
		if gs, _ := s.GroundSpeed.Get(); math.Abs(gs-231.5) > 0.1 {
			t.Errorf("Expected ground speed ~231.5 m/s, got %f", gs)
		}
		if hdg, ok := s.Heading.Get(); !ok || hdg != 0 {
			t.Errorf("Expected heading 0 to be kept as a real value, got %v (set=%v)", hdg, ok)
		}
		if vr, _ := s.VerticalRate.Get(); math.Abs(vr+3.048) > 0.001 {
			t.Errorf("Expected vertical rate -3.048 m/s, got %f", vr)
		}
		wantTS := time.UnixMilli(1700000000000).UTC().Add(-2 * time.Second)
		if !s.Timestamp.Equal(wantTS) {
			t.Errorf("Expected timestamp %v, got %v", wantTS, s.Timestamp)
		}
	})

	t.Run("Caps radius at 250 NM", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/point/35.0000/-80.0000/250" {
				t.Errorf("Expected radius capped at 250, got path %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(airplanesLiveResponse{Aircraft: []airplanesLiveAircraft{}})
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(server.URL, 0, 0)
		wide := area
		wide.RadiusKm = 1000
		if _, err := client.FetchSnapshots(context.Background(), wide); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	})

	t.Run("Handles rate limit error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.Header().Set("X-Rate-Limit-Limit", "100")
			w.Header().Set("X-Rate-Limit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Rate limit exceeded"))
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(server.URL, 0, 0)
		_, err := client.FetchSnapshots(context.Background(), area)

		rle, ok := IsRateLimitError(err)
		if !ok {
			t.Fatalf("Expected RateLimitError, got %T: %v", err, err)
		}
		if rle.RetryAfter != 30*time.Second {
			t.Errorf("Expected retry after 30s, got %v", rle.RetryAfter)
		}
		if rle.Headers.Limit != 100 || rle.Headers.Remaining != 0 {
			t.Errorf("Unexpected rate limit headers: %+v", rle.Headers)
		}
		if !errors.Is(err, ErrTransport) {
			t.Error("Expected rate limit to classify as a transport error")
		}
	})

	t.Run("Handles HTTP error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Internal server error"))
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(server.URL, 0, 0)
		_, err := client.FetchSnapshots(context.Background(), area)

		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("Expected TransportError, got %T: %v", err, err)
		}
		if te.StatusCode != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", te.StatusCode)
		}
	})

	t.Run("Malformed payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ac": [`))
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(server.URL, 0, 0)
		_, err := client.FetchSnapshots(context.Background(), area)
		if !errors.Is(err, ErrDataFormat) {
			t.Errorf("Expected data format error, got %v", err)
		}
	})

	t.Run("Keeps aircraft with missing position for accounting", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(airplanesLiveResponse{
				Aircraft: []airplanesLiveAircraft{
					{Hex: "a12345", Lat: floatPtr(35.5), Lon: floatPtr(-80.5)},
					{Hex: "b67890"},
				},
			})
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(server.URL, 0, 0)
		snaps, err := client.FetchSnapshots(context.Background(), area)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(snaps) != 2 {
			t.Fatalf("Expected both entries returned, got %d", len(snaps))
		}
		if _, ok := snaps[1].Position(); ok {
			t.Error("Expected second entry to have no position")
		}
	})

	t.Run("Cancelled context", func(t *testing.T) {
		client := NewAirplanesLiveClient("http://127.0.0.1:1", 0, 0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.FetchSnapshots(ctx, area)
		if !errors.Is(err, ErrTransport) {
			t.Errorf("Expected transport error on cancelled context, got %v", err)
		}
	})
}

// TestParseAltitude tests altitude parsing from mixed JSON types.
func TestParseAltitude(t *testing.T) {
	tests := []struct {
		name       string
		input      interface{}
		wantFeet   float64
		wantGround bool
		wantOK     bool
	}{
		{"Float altitude", 35000.0, 35000.0, false, true},
		{"Ground string", "ground", 0, true, true},
		{"Unknown string", "n/a", 0, false, false},
		{"Nil", nil, 0, false, false},
		{"NaN", math.NaN(), 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feet, ground, ok := parseAltitude(tt.input)
			if feet != tt.wantFeet || ground != tt.wantGround || ok != tt.wantOK {
				t.Errorf("parseAltitude(%v) = (%v, %v, %v), expected (%v, %v, %v)",
					tt.input, feet, ground, ok, tt.wantFeet, tt.wantGround, tt.wantOK)
			}
		})
	}
}

// TestConvertAirplanesLiveAircraft checks that absent fields stay absent.
func TestConvertAirplanesLiveAircraft(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := convertAirplanesLiveAircraft(airplanesLiveAircraft{Hex: "abc123", Lat: floatPtr(1), Lon: floatPtr(2)}, base)

	if s.Altitude.IsSet() || s.GroundSpeed.IsSet() || s.Heading.IsSet() || s.Callsign.IsSet() {
		t.Errorf("Expected unset optional fields, got %+v", s)
	}
	if !s.Timestamp.Equal(base) {
		t.Errorf("Expected timestamp %v, got %v", base, s.Timestamp)
	}

	withGeom := convertAirplanesLiveAircraft(airplanesLiveAircraft{Hex: "abc123", AltGeom: 1000.0, AltBaro: 900.0}, base)
	if alt, _ := withGeom.Altitude.Get(); math.Abs(alt-304.8) > 1e-9 {
		t.Errorf("Expected geometric altitude preferred (304.8 m), got %f", alt)
	}
}

// TestParseRetryAfter tests Retry-After header parsing.
func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2015, 10, 21, 7, 27, 0, 0, time.UTC)
	tests := []struct {
		name     string
		header   string
		expected time.Duration
	}{
		{"Seconds", "30", 30 * time.Second},
		{"HTTP date", "Wed, 21 Oct 2015 07:28:00 GMT", time.Minute},
		{"Past date", "Wed, 21 Oct 2015 07:00:00 GMT", 0},
		{"Empty", "", 0},
		{"Garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			if got := parseRetryAfter(h, now); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// TestExtractRateLimitHeaders tests rate limit header extraction.
func TestExtractRateLimitHeaders(t *testing.T) {
	t.Run("Standard headers", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Rate-Limit-Limit", "100")
		h.Set("X-Rate-Limit-Remaining", "42")
		h.Set("X-Rate-Limit-Reset", "1700000000")

		rlh := extractRateLimitHeaders(h)
		if rlh.Limit != 100 || rlh.Remaining != 42 {
			t.Errorf("Unexpected values: %+v", rlh)
		}
		if !rlh.Reset.Equal(time.Unix(1700000000, 0)) {
			t.Errorf("Unexpected reset %v", rlh.Reset)
		}
	})

	t.Run("Alternative header names", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Limit", "50")
		h.Set("X-RateLimit-Remaining", "10")

		rlh := extractRateLimitHeaders(h)
		if rlh.Limit != 50 || rlh.Remaining != 10 {
			t.Errorf("Unexpected values: %+v", rlh)
		}
	})

	t.Run("Missing headers", func(t *testing.T) {
		rlh := extractRateLimitHeaders(http.Header{})
		if rlh.Limit != -1 || rlh.Remaining != -1 {
			t.Errorf("Expected -1 sentinels, got %+v", rlh)
		}
	})
}

// TestErrorClassification tests the error taxonomy.
func TestErrorClassification(t *testing.T) {
	cause := errors.New("connection refused")
	te := &TransportError{Provider: "opensky", Err: cause}
	if !errors.Is(te, ErrTransport) || !errors.Is(te, cause) {
		t.Error("TransportError should match ErrTransport and its cause")
	}
	if errors.Is(te, ErrDataFormat) {
		t.Error("TransportError must not match ErrDataFormat")
	}

	de := &DataFormatError{Field: "lat", Reason: "out of range"}
	if !errors.Is(de, ErrDataFormat) {
		t.Error("DataFormatError should match ErrDataFormat")
	}
	if de.Error() != "lat: out of range" {
		t.Errorf("Unexpected message %q", de.Error())
	}

	rle := &RateLimitError{Message: "Rate limit exceeded", RetryAfter: 5 * time.Second}
	if rle.Error() != "Rate limit exceeded (retry after 5s)" {
		t.Errorf("Unexpected message %q", rle.Error())
	}
	if _, ok := IsRateLimitError(errors.New("other")); ok {
		t.Error("Plain error must not be a rate limit error")
	}
}

// TestSnapshotHelpers tests Position, DisplayName and BoundingBox.
func TestSnapshotHelpers(t *testing.T) {
	s := Snapshot{ICAO24: "ABC123", Latitude: Some(1.0)}
	if _, ok := s.Position(); ok {
		t.Error("Expected no position with longitude missing")
	}
	s.Longitude = Some(2.0)
	if pos, ok := s.Position(); !ok || pos.Latitude != 1 || pos.Longitude != 2 {
		t.Errorf("Unexpected position %+v (ok=%v)", pos, ok)
	}

	if s.DisplayName() != "abc123" {
		t.Errorf("Expected ICAO fallback, got %q", s.DisplayName())
	}
	s.Callsign = Some("  ")
	if s.DisplayName() != "abc123" {
		t.Errorf("Expected ICAO fallback for blank callsign, got %q", s.DisplayName())
	}
	s.Callsign = Some(" DAL42 ")
	if s.DisplayName() != "DAL42" {
		t.Errorf("Expected trimmed callsign, got %q", s.DisplayName())
	}

	area := Area{Center: coordinates.Geographic{Latitude: 0, Longitude: 0}, RadiusKm: 111}
	latMin, latMax, lonMin, lonMax := area.BoundingBox()
	if math.Abs(latMin+1) > 1e-9 || math.Abs(latMax-1) > 1e-9 || math.Abs(lonMin+1) > 1e-9 || math.Abs(lonMax-1) > 1e-9 {
		t.Errorf("Unexpected box %f %f %f %f", latMin, latMax, lonMin, lonMax)
	}

	polar := Area{Center: coordinates.Geographic{Latitude: 90, Longitude: 0}, RadiusKm: 50}
	_, latMax, lonMin, lonMax = polar.BoundingBox()
	if latMax != 90 || lonMin != -180 || lonMax != 180 {
		t.Errorf("Expected polar box to span all longitudes, got lat<=%f lon %f..%f", latMax, lonMin, lonMax)
	}
}

// TestOptional tests Optional semantics and JSON encoding.
func TestOptional(t *testing.T) {
	var unset Optional[float64]
	if unset.IsSet() {
		t.Error("Zero Optional must be unset")
	}
	if unset.OrElse(7) != 7 {
		t.Error("OrElse should return the default when unset")
	}

	zero := Some(0.0)
	if v, ok := zero.Get(); !ok || v != 0 {
		t.Error("Some(0) must be set and hold zero")
	}

	if FromPtr[float64](nil).IsSet() {
		t.Error("FromPtr(nil) must be unset")
	}

	type payload struct {
		Heading Optional[float64] `json:"heading"`
		Name    Optional[string]  `json:"name"`
	}
	data, err := json.Marshal(payload{Heading: Some(0.0)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"heading":0,"name":null}` {
		t.Errorf("Unexpected JSON %s", data)
	}

	var decoded payload
	if err := json.Unmarshal([]byte(`{"heading":null,"name":"x"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Heading.IsSet() {
		t.Error("null must decode as unset")
	}
	if n, _ := decoded.Name.Get(); n != "x" {
		t.Errorf("Expected name x, got %q", n)
	}
}

// Helper functions
func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}
