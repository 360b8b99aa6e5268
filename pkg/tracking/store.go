package tracking

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/coordinates"
)

const (
	// DefaultTrailLength is the number of confirmed positions kept per record.
	DefaultTrailLength = 10

	// MaxTrailLength bounds the configurable trail length.
	MaxTrailLength = 50
)

// Rejection reports a snapshot the store refused to ingest.
type Rejection struct {
	// Index is the position of the snapshot in the batch
	Index int `json:"index"`

	// ICAO24 as received, possibly empty
	ICAO24 string `json:"icao24"`

	// Err wraps adsb.ErrDataFormat or ErrIdentityConflict
	Err error `json:"-"`
}

func (r Rejection) String() string {
	return fmt.Sprintf("#%d %q: %v", r.Index, r.ICAO24, r.Err)
}

// IngestResult accounts for every snapshot of a batch.
// Created + Updated + Stale + len(Rejected) equals the batch length.
type IngestResult struct {
	Created  int         `json:"created"`
	Updated  int         `json:"updated"`
	Stale    int         `json:"stale"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Total returns the number of snapshots accounted for.
func (r IngestResult) Total() int {
	return r.Created + r.Updated + r.Stale + len(r.Rejected)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// TrailLength is the number of positions kept per record.
	// 0 uses DefaultTrailLength, a negative value disables trails.
	TrailLength int

	Interpolator Interpolator

	Logger zerolog.Logger
}

// Store is the authoritative mapping from aircraft identity to tracked state.
// All mutation (Ingest, EvictStale, Advance) and all reads (Snapshot, Get)
// are serialized by one RWMutex, so a reader never sees a position without
// the velocity computed with it.
type Store struct {
	mu           sync.RWMutex
	records      map[string]*Record
	trailLength  int
	interpolator Interpolator
	log          zerolog.Logger
}

// NewStore creates an empty store.
func NewStore(opts StoreOptions) *Store {
	trail := opts.TrailLength
	switch {
	case trail == 0:
		trail = DefaultTrailLength
	case trail < 0:
		trail = 0
	case trail > MaxTrailLength:
		trail = MaxTrailLength
	}
	return &Store{
		records:      make(map[string]*Record),
		trailLength:  trail,
		interpolator: opts.Interpolator,
		log:          opts.Logger,
	}
}

// NormalizeICAO24 returns the canonical form of a transponder address.
func NormalizeICAO24(icao string) string {
	return strings.ToLower(strings.TrimSpace(icao))
}

// validICAO24 accepts six hex digits, optionally prefixed with '~' for
// non-ICAO (TIS-B) addresses.
func validICAO24(icao string) bool {
	icao = strings.TrimPrefix(icao, "~")
	if len(icao) != 6 {
		return false
	}
	for _, c := range icao {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

type accepted struct {
	icao string
	snap adsb.Snapshot
	pos  coordinates.Geographic
}

// validate checks one snapshot and returns its normalized form.
func validate(s adsb.Snapshot, observedAt time.Time) (accepted, error) {
	icao := NormalizeICAO24(s.ICAO24)
	if icao == "" {
		return accepted{}, &adsb.DataFormatError{Field: "icao24", Reason: "missing"}
	}
	if !validICAO24(icao) {
		return accepted{}, &adsb.DataFormatError{Field: "icao24", Reason: fmt.Sprintf("invalid address %q", s.ICAO24)}
	}

	pos, ok := s.Position()
	if !ok {
		return accepted{}, &adsb.DataFormatError{Field: "position", Reason: "missing latitude or longitude"}
	}
	if math.IsNaN(pos.Latitude) || pos.Latitude < -90 || pos.Latitude > 90 {
		return accepted{}, &adsb.DataFormatError{Field: "latitude", Reason: fmt.Sprintf("%v out of range", pos.Latitude)}
	}
	if math.IsNaN(pos.Longitude) || pos.Longitude < -180 || pos.Longitude > 180 {
		return accepted{}, &adsb.DataFormatError{Field: "longitude", Reason: fmt.Sprintf("%v out of range", pos.Longitude)}
	}

	s.ICAO24 = icao
	if s.Timestamp.IsZero() {
		s.Timestamp = observedAt
	}
	return accepted{icao: icao, snap: s, pos: pos}, nil
}

// Ingest applies a batch of snapshots observed at observedAt.
//
// An unknown ICAO24 creates a record with zero velocity. A known one is
// updated with the velocity between its previous and new confirmed position.
// A snapshot that is not newer than the record's LastSeen is counted as
// stale and changes nothing. Malformed snapshots and those beyond
// adsb.MaxBatchSize are rejected and reported.
func (s *Store) Ingest(batch []adsb.Snapshot, observedAt time.Time) IngestResult {
	var result IngestResult

	valid := make([]accepted, 0, len(batch))
	index := make([]int, 0, len(batch))
	for i, snap := range batch {
		if i >= adsb.MaxBatchSize {
			result.Rejected = append(result.Rejected, Rejection{
				Index:  i,
				ICAO24: snap.ICAO24,
				Err: &adsb.DataFormatError{
					Field:  "batch",
					Reason: fmt.Sprintf("exceeds maximum batch size %d", adsb.MaxBatchSize),
				},
			})
			continue
		}
		a, err := validate(snap, observedAt)
		if err != nil {
			result.Rejected = append(result.Rejected, Rejection{Index: i, ICAO24: snap.ICAO24, Err: err})
			continue
		}
		valid = append(valid, a)
		index = append(index, i)
	}

	s.mu.Lock()
	for n, a := range valid {
		rec, ok := s.records[a.icao]
		if !ok {
			s.records[a.icao] = s.newRecord(a)
			result.Created++
			continue
		}
		if rec.ICAO24 != a.icao {
			result.Rejected = append(result.Rejected, Rejection{
				Index:  index[n],
				ICAO24: a.icao,
				Err:    fmt.Errorf("record %q stored under %q: %w", rec.ICAO24, a.icao, ErrIdentityConflict),
			})
			continue
		}
		if !a.snap.Timestamp.After(rec.LastSeen) {
			result.Stale++
			continue
		}
		s.update(rec, a)
		result.Updated++
	}
	s.mu.Unlock()

	if len(result.Rejected) > 0 {
		sort.Slice(result.Rejected, func(i, j int) bool {
			return result.Rejected[i].Index < result.Rejected[j].Index
		})
		for _, r := range result.Rejected {
			s.log.Debug().Int("index", r.Index).Str("icao24", r.ICAO24).Err(r.Err).Msg("snapshot rejected")
		}
	}

	s.log.Debug().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("stale", result.Stale).
		Int("rejected", len(result.Rejected)).
		Msg("batch ingested")

	return result
}

func (s *Store) newRecord(a accepted) *Record {
	band := BandFor(a.snap.Altitude)
	rec := &Record{
		ICAO24:     a.icao,
		Last:       a.snap,
		Confirmed:  a.pos,
		Position:   a.pos,
		Confidence: 1.0,
		FirstSeen:  a.snap.Timestamp,
		LastSeen:   a.snap.Timestamp,
		Updates:    1,
		Band:       band,
		Color:      band.Color(),
	}
	s.appendTrail(rec, a.pos, a.snap.Timestamp)
	return rec
}

func (s *Store) update(rec *Record, a accepted) {
	elapsed := a.snap.Timestamp.Sub(rec.LastSeen)
	band := BandFor(a.snap.Altitude)

	rec.Velocity = velocityBetween(rec.Confirmed, a.pos, elapsed)
	rec.Last = a.snap
	rec.Confirmed = a.pos
	rec.Position = a.pos
	rec.Confidence = 1.0
	rec.LastSeen = a.snap.Timestamp
	rec.Updates++
	rec.Band = band
	rec.Color = band.Color()
	s.appendTrail(rec, a.pos, a.snap.Timestamp)
}

func (s *Store) appendTrail(rec *Record, pos coordinates.Geographic, t time.Time) {
	if s.trailLength == 0 {
		return
	}
	rec.Trail = append(rec.Trail, TrailPoint{Position: pos, Time: t})
	if over := len(rec.Trail) - s.trailLength; over > 0 {
		rec.Trail = append(rec.Trail[:0], rec.Trail[over:]...)
	}
}

// Snapshot returns a consistent copy of every record, sorted by ICAO24.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ICAO24 < out[j].ICAO24
	})
	return out
}

// Get returns a copy of the record for icao, if tracked.
func (s *Store) Get(icao string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[NormalizeICAO24(icao)]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Len returns the number of tracked aircraft.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// EvictStale removes every record whose LastSeen is more than ttl before now
// and returns how many were removed.
func (s *Store) EvictStale(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for icao, rec := range s.records {
		if now.Sub(rec.LastSeen) > ttl {
			delete(s.records, icao)
			removed++
		}
	}
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Dur("ttl", ttl).Msg("evicted stale aircraft")
	}
	return removed
}

// Advance moves every record's display position to its interpolated value
// at now.
func (s *Store) Advance(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		rec.Position, rec.Confidence = s.interpolator.Estimate(*rec, now)
	}
}

// SetMaxHorizon changes the extrapolation cap, typically when the refresh
// interval changes.
func (s *Store) SetMaxHorizon(d time.Duration) {
	s.mu.Lock()
	s.interpolator.MaxHorizon = d
	s.mu.Unlock()
}

// Clear removes all records.
func (s *Store) Clear() {
	s.mu.Lock()
	s.records = make(map[string]*Record)
	s.mu.Unlock()
}
