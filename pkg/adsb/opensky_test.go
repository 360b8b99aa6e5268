package adsb

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/unklstewy/skyradar/pkg/coordinates"
)

const openSkyStates = `{
  "time": 1700000000,
  "states": [
    ["a12345", "UAL123  ", "United States", 1699999995, 1699999999, -80.5, 35.5, 10000.0, false, 230.5, 90.0, -2.5, null, 10100.0, "1200", false, 0],
    ["B67890", null, "Canada", null, 1699999990, -80.1, 35.1, null, true, 0.0, null, null, null, 12.0, null, false, 0],
    ["c0ffee", "NOPOS", "Mexico", null, null, null, null, null, false, null, null, null, null, null, null, false, 0]
  ]
}`

// TestOpenSkyFetch tests the states/all query and state vector decoding.
func TestOpenSkyFetch(t *testing.T) {
	area := Area{Center: coordinates.Geographic{Latitude: 35, Longitude: -80}, RadiusKm: 111}

	t.Run("Successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/states/all" {
				t.Errorf("Expected path /states/all, got %s", r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("lamin") != "34.0000" || q.Get("lamax") != "36.0000" {
				t.Errorf("Unexpected latitude box %s..%s", q.Get("lamin"), q.Get("lamax"))
			}
			if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "secret" {
				t.Errorf("Expected basic auth alice/secret, got %q/%q (%v)", user, pass, ok)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(openSkyStates))
		}))
		defer server.Close()

		client := NewOpenSkyClient(OpenSkyConfig{
			BaseURL:     server.URL,
			Username:    "alice",
			Password:    "secret",
			MinInterval: time.Millisecond,
		})
		defer client.Close()

		snaps, err := client.FetchSnapshots(context.Background(), area)
		if err != nil {
			t.Fatalf("FetchSnapshots failed: %v", err)
		}
		if len(snaps) != 3 {
			t.Fatalf("Expected 3 snapshots, got %d", len(snaps))
		}

		first := snaps[0]
		if first.ICAO24 != "a12345" {
			t.Errorf("Expected ICAO a12345, got %s", first.ICAO24)
		}
		if cs, _ := first.Callsign.Get(); cs != "UAL123" {
			t.Errorf("Expected trimmed callsign UAL123, got %q", cs)
		}
		if alt, _ := first.Altitude.Get(); alt != 10000 {
			t.Errorf("Expected barometric altitude 10000, got %f", alt)
		}
		if !first.Timestamp.Equal(time.Unix(1699999995, 0)) {
			t.Errorf("Expected position time, got %v", first.Timestamp)
		}
		if sq, _ := first.Squawk.Get(); sq != "1200" {
			t.Errorf("Expected squawk 1200, got %q", sq)
		}

		second := snaps[1]
		if second.Callsign.IsSet() || second.Heading.IsSet() {
			t.Error("Expected null fields to stay absent")
		}
		if alt, _ := second.Altitude.Get(); alt != 12 {
			t.Errorf("Expected geometric altitude fallback 12, got %f", alt)
		}
		if gs, ok := second.GroundSpeed.Get(); !ok || gs != 0 {
			t.Errorf("Expected legal zero ground speed, got %f (set=%v)", gs, ok)
		}
		if !second.Timestamp.Equal(time.Unix(1699999990, 0)) {
			t.Errorf("Expected last contact fallback, got %v", second.Timestamp)
		}

		third := snaps[2]
		if _, ok := third.Position(); ok {
			t.Error("Expected no position for null coordinates")
		}
		if !third.Timestamp.Equal(time.Unix(1700000000, 0)) {
			t.Errorf("Expected response time fallback, got %v", third.Timestamp)
		}
	})

	t.Run("Anonymous request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, _, ok := r.BasicAuth(); ok {
				t.Error("Expected no credentials")
			}
			w.Write([]byte(`{"time": 1700000000, "states": null}`))
		}))
		defer server.Close()

		client := NewOpenSkyClient(OpenSkyConfig{BaseURL: server.URL, MinInterval: time.Millisecond})
		snaps, err := client.FetchSnapshots(context.Background(), area)
		if err != nil {
			t.Fatalf("FetchSnapshots failed: %v", err)
		}
		if len(snaps) != 0 {
			t.Errorf("Expected empty batch, got %d", len(snaps))
		}
	})

	t.Run("Rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Rate-Limit-Retry-After-Seconds", "120")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewOpenSkyClient(OpenSkyConfig{BaseURL: server.URL, MinInterval: time.Millisecond})
		_, err := client.FetchSnapshots(context.Background(), area)

		rl, ok := IsRateLimitError(err)
		if !ok {
			t.Fatalf("Expected RateLimitError, got %v", err)
		}
		if !errors.Is(err, ErrTransport) {
			t.Error("Expected rate limit error to classify as transport")
		}
		if rl.RetryAfter <= 0 {
			t.Errorf("Expected Retry-After to be parsed, got %v", rl.RetryAfter)
		}
	})

	t.Run("Server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewOpenSkyClient(OpenSkyConfig{BaseURL: server.URL, MinInterval: time.Millisecond})
		_, err := client.FetchSnapshots(context.Background(), area)

		var te *TransportError
		if !errors.As(err, &te) || te.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("Expected TransportError with 503, got %v", err)
		}
	})

	t.Run("Malformed payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"states": "nope"}`))
		}))
		defer server.Close()

		client := NewOpenSkyClient(OpenSkyConfig{BaseURL: server.URL, MinInterval: time.Millisecond})
		_, err := client.FetchSnapshots(context.Background(), area)
		if !errors.Is(err, ErrDataFormat) {
			t.Fatalf("Expected data format error, got %v", err)
		}
	})

	t.Run("Oversized batch", func(t *testing.T) {
		var b strings.Builder
		b.WriteString(`{"time": 1700000000, "states": [`)
		for i := 0; i <= MaxBatchSize; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(`["a00000"]`)
		}
		b.WriteString(`]}`)
		body := b.String()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		defer server.Close()

		client := NewOpenSkyClient(OpenSkyConfig{BaseURL: server.URL, MinInterval: time.Millisecond})
		_, err := client.FetchSnapshots(context.Background(), area)
		if !errors.Is(err, ErrDataFormat) {
			t.Fatalf("Expected data format error for oversized batch, got %v", err)
		}
	})
}

// TestConvertOpenSkyStateShortVector tests that truncated vectors decode partially.
func TestConvertOpenSkyStateShortVector(t *testing.T) {
	fallback := time.Unix(1700000000, 0).UTC()
	s := convertOpenSkyState([]any{"abc123", "TEST", 42.0}, fallback)

	if s.ICAO24 != "abc123" {
		t.Errorf("Expected ICAO abc123, got %s", s.ICAO24)
	}
	if s.OriginCountry.IsSet() {
		t.Error("Expected mistyped origin country to be absent")
	}
	if s.Latitude.IsSet() || s.Altitude.IsSet() {
		t.Error("Expected missing indices to be absent")
	}
	if !s.Timestamp.Equal(fallback) {
		t.Errorf("Expected fallback timestamp, got %v", s.Timestamp)
	}

	nan := convertOpenSkyState([]any{"abc123", nil, nil, nil, nil, math.NaN(), 1.0}, fallback)
	if nan.Longitude.IsSet() {
		t.Error("Expected NaN longitude to be absent")
	}
}

// TestMockSource tests that demo traffic stays inside the area and moves.
func TestMockSource(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	src := NewMockSource(func() time.Time { return clock })
	area := Area{Center: coordinates.Geographic{Latitude: 51.5, Longitude: -0.1}, RadiusKm: 8}

	first, err := src.FetchSnapshots(context.Background(), area)
	if err != nil {
		t.Fatalf("FetchSnapshots failed: %v", err)
	}
	if len(first) != len(mockTracks) {
		t.Fatalf("Expected %d snapshots, got %d", len(mockTracks), len(first))
	}

	for _, s := range first {
		pos, ok := s.Position()
		if !ok {
			t.Fatalf("Expected position for %s", s.ICAO24)
		}
		if d := coordinates.DistanceKm(area.Center, pos); d > area.RadiusKm+1e-6 {
			t.Errorf("%s outside area: %f km", s.ICAO24, d)
		}
	}
	if first[3].Altitude.IsSet() {
		t.Error("Expected one track with unknown altitude")
	}

	clock = clock.Add(10 * time.Second)
	second, _ := src.FetchSnapshots(context.Background(), area)
	p1, _ := first[0].Position()
	p2, _ := second[0].Position()
	if p1 == p2 {
		t.Error("Expected aircraft to move between fetches")
	}
	if !second[0].Timestamp.After(first[0].Timestamp) {
		t.Error("Expected newer timestamp on later fetch")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.FetchSnapshots(ctx, area); !errors.Is(err, ErrTransport) {
		t.Errorf("Expected transport error for cancelled context, got %v", err)
	}
}
