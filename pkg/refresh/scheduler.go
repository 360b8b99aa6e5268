// Package refresh drives periodic snapshot fetches into the tracking store.
//
// The Scheduler is an explicit state machine:
//
//	Idle -> Fetching -> Idle            (success, next fetch after interval + jitter)
//	Idle -> Fetching -> Backoff -> Idle (failure, retry after exponential backoff)
//
// Provider failures never clear the store and never stop the loop; they are
// surfaced through Status.
package refresh

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/tracking"
)

const (
	// DefaultMinInterval is the shortest refresh interval honoured.
	DefaultMinInterval = 10 * time.Second

	// DefaultJitter bounds the random delay added to each interval.
	DefaultJitter = 3 * time.Second
)

// State is the scheduler state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settings is the externally mutated configuration read at every cycle.
type Settings interface {
	RefreshInterval() time.Duration
	ObserverLocation() coordinates.Geographic
	RadarRadiusKm() float64
}

// StaticSettings is a fixed Settings value.
type StaticSettings struct {
	Interval time.Duration
	Observer coordinates.Geographic
	RadiusKm float64
}

func (s StaticSettings) RefreshInterval() time.Duration           { return s.Interval }
func (s StaticSettings) ObserverLocation() coordinates.Geographic { return s.Observer }
func (s StaticSettings) RadarRadiusKm() float64                   { return s.RadiusKm }

// Sink receives the tracked records after every successful ingest.
// Sink errors are logged and do not fail the cycle.
type Sink interface {
	Name() string
	Persist(ctx context.Context, records []tracking.Record, observedAt time.Time) error
}

// Status is a point-in-time view of the scheduler for UI display.
type Status struct {
	State State `json:"state"`

	// Source is the provider name
	Source string `json:"source"`

	// RetryAt is when the next attempt starts while in Backoff
	RetryAt time.Time `json:"retry_at,omitempty"`

	// NextFetch is when the next fetch is scheduled
	NextFetch time.Time `json:"next_fetch,omitempty"`

	LastSuccess time.Time `json:"last_success,omitempty"`

	LastError error  `json:"-"`
	Error     string `json:"error,omitempty"`

	// Failures counts consecutive failed fetches
	Failures int `json:"failures"`

	LastResult tracking.IngestResult `json:"last_result"`
	Evicted    int                   `json:"evicted"`
}

// Summary renders the status line shown by front-ends.
func (st Status) Summary(now time.Time) string {
	last := "never"
	if !st.LastSuccess.IsZero() {
		last = st.LastSuccess.Local().Format("15:04:05")
	}

	switch st.State {
	case StateFetching:
		return fmt.Sprintf("Last updated %s · fetching…", last)
	case StateBackoff:
		if st.RetryAt.IsZero() {
			return fmt.Sprintf("Last updated %s · refresh failed (%d failures: %s)", last, st.Failures, st.Error)
		}
		wait := st.RetryAt.Sub(now).Round(time.Second)
		if wait < 0 {
			wait = 0
		}
		return fmt.Sprintf("Last updated %s · retry in %v (%d failures: %s)", last, wait, st.Failures, st.Error)
	default:
		if st.NextFetch.IsZero() {
			return fmt.Sprintf("Last updated %s", last)
		}
		wait := st.NextFetch.Sub(now).Round(time.Second)
		if wait < 0 {
			wait = 0
		}
		return fmt.Sprintf("Last updated %s · next refresh in %v", last, wait)
	}
}

// Options configures a Scheduler.
type Options struct {
	Source   adsb.DataSource
	Store    *tracking.Store
	Evictor  *Evictor
	Settings Settings

	Backoff Backoff

	// Jitter is the exclusive upper bound of the random delay added to each
	// interval (default: DefaultJitter, negative disables)
	Jitter time.Duration

	// MinInterval floors the refresh interval (default: DefaultMinInterval)
	MinInterval time.Duration

	Sinks []Sink

	// OnStatus is called after every state change, outside any lock
	OnStatus func(Status)

	Logger zerolog.Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// Rand returns a value in [0, n) (default: math/rand/v2 Int64N)
	Rand func(n int64) int64
}

// Scheduler periodically fetches snapshots and feeds them into the store.
type Scheduler struct {
	source   adsb.DataSource
	store    *tracking.Store
	evictor  *Evictor
	settings Settings
	backoff  Backoff
	jitter   time.Duration
	minIntvl time.Duration
	sinks    []Sink
	onStatus func(Status)
	log      zerolog.Logger
	now      func() time.Time
	rand     func(n int64) int64

	refreshNow chan struct{}
	fetches    sync.WaitGroup

	mu     sync.Mutex
	status Status
}

type fetchResult struct {
	snapshots []adsb.Snapshot
	err       error
	at        time.Time
}

// NewScheduler creates a scheduler. It does nothing until Run is called.
func NewScheduler(opts Options) *Scheduler {
	if opts.Jitter == 0 {
		opts.Jitter = DefaultJitter
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Int64N
	}
	if opts.Evictor == nil {
		opts.Evictor = NewEvictor(opts.Store, opts.Settings, EvictorOptions{
			MinInterval: opts.MinInterval,
			Logger:      opts.Logger,
			Now:         opts.Now,
		})
	}
	return &Scheduler{
		source:     opts.Source,
		store:      opts.Store,
		evictor:    opts.Evictor,
		settings:   opts.Settings,
		backoff:    opts.Backoff,
		jitter:     opts.Jitter,
		minIntvl:   opts.MinInterval,
		sinks:      opts.Sinks,
		onStatus:   opts.OnStatus,
		log:        opts.Logger.With().Str("component", "scheduler").Str("source", opts.Source.Name()).Logger(),
		now:        opts.Now,
		rand:       opts.Rand,
		refreshNow: make(chan struct{}, 1),
		status:     Status{State: StateIdle, Source: opts.Source.Name()},
	}
}

// Status returns the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RefreshNow requests an immediate fetch. An in-flight fetch is cancelled
// and its result discarded. Repeated calls before the loop reacts coalesce.
func (s *Scheduler) RefreshNow() {
	select {
	case s.refreshNow <- struct{}{}:
	default:
	}
}

// ClearRefreshRequest drops a RefreshNow request the loop has not consumed
// and reports whether there was one. Call it after Run returns so a stale
// request does not cut short a later Once or Run.
func (s *Scheduler) ClearRefreshRequest() bool {
	select {
	case <-s.refreshNow:
		return true
	default:
		return false
	}
}

// Interval returns the effective refresh interval.
func (s *Scheduler) Interval() time.Duration {
	interval := s.settings.RefreshInterval()
	if interval < s.minIntvl {
		interval = s.minIntvl
	}
	return interval
}

// Run fetches immediately and then on schedule until ctx is cancelled.
// An in-flight fetch is aborted on cancellation and its result dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.fetches.Wait()

	s.log.Info().Dur("interval", s.Interval()).Msg("scheduler started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.update(func(st *Status) {
				st.State = StateIdle
				st.NextFetch = time.Time{}
			})
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-s.refreshNow:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		if s.Status().State == StateBackoff {
			s.update(func(st *Status) { st.State = StateIdle })
		}

		delay, ok := s.cycle(ctx)
		if !ok {
			continue
		}
		timer.Reset(delay)
	}
}

// Once runs a single fetch cycle without scheduling another. It serves
// manual refreshes while automatic refresh is off and must not overlap Run.
func (s *Scheduler) Once(ctx context.Context) Status {
	defer s.fetches.Wait()

	if _, ok := s.cycle(ctx); ok {
		s.update(func(st *Status) {
			st.NextFetch = time.Time{}
			st.RetryAt = time.Time{}
		})
	}
	return s.Status()
}

// cycle runs one fetch to completion and returns the delay before the next.
// ok is false when ctx was cancelled.
func (s *Scheduler) cycle(ctx context.Context) (time.Duration, bool) {
	for {
		s.update(func(st *Status) {
			st.State = StateFetching
			st.RetryAt = time.Time{}
			st.NextFetch = time.Time{}
		})

		fetchCtx, cancel := context.WithCancel(ctx)
		results := make(chan fetchResult, 1)
		area := adsb.Area{
			Center:   s.settings.ObserverLocation(),
			RadiusKm: s.settings.RadarRadiusKm(),
		}

		s.fetches.Add(1)
		go func() {
			defer s.fetches.Done()
			snaps, err := s.source.FetchSnapshots(fetchCtx, area)
			results <- fetchResult{snapshots: snaps, err: err, at: s.now()}
		}()

		select {
		case <-ctx.Done():
			cancel()
			return 0, false
		case <-s.refreshNow:
			cancel()
			s.log.Debug().Msg("refresh requested, restarting in-flight fetch")
			continue
		case r := <-results:
			cancel()
			if ctx.Err() != nil {
				return 0, false
			}
			if r.err != nil {
				return s.fail(r), true
			}
			return s.succeed(ctx, r), true
		}
	}
}

func (s *Scheduler) fail(r fetchResult) time.Duration {
	st := s.Status()
	failures := st.Failures + 1
	delay := s.backoff.Delay(failures, r.err)
	retryAt := r.at.Add(delay)

	s.log.Warn().
		Err(r.err).
		Int("failures", failures).
		Dur("retry_in", delay).
		Msg("fetch failed, backing off")

	s.update(func(st *Status) {
		st.State = StateBackoff
		st.Failures = failures
		st.LastError = r.err
		st.Error = r.err.Error()
		st.RetryAt = retryAt
		st.NextFetch = retryAt
	})
	return delay
}

func (s *Scheduler) succeed(ctx context.Context, r fetchResult) time.Duration {
	result := s.store.Ingest(r.snapshots, r.at)
	evicted := s.evictor.Sweep(r.at)

	if len(s.sinks) > 0 {
		records := s.store.Snapshot()
		for _, sink := range s.sinks {
			if err := sink.Persist(ctx, records, r.at); err != nil {
				s.log.Error().Err(err).Str("sink", sink.Name()).Msg("sink failed")
			}
		}
	}

	delay := s.Interval()
	if s.jitter > 0 {
		delay += time.Duration(s.rand(int64(s.jitter)))
	}

	s.log.Info().
		Int("fetched", len(r.snapshots)).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("stale", result.Stale).
		Int("rejected", len(result.Rejected)).
		Int("evicted", evicted).
		Int("tracked", s.store.Len()).
		Dur("next_in", delay).
		Msg("refresh complete")

	s.update(func(st *Status) {
		st.State = StateIdle
		st.Failures = 0
		st.LastError = nil
		st.Error = ""
		st.LastSuccess = r.at
		st.LastResult = result
		st.Evicted = evicted
		st.NextFetch = r.at.Add(delay)
	})
	return delay
}

func (s *Scheduler) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	st := s.status
	s.mu.Unlock()

	if s.onStatus != nil {
		s.onStatus(st)
	}
}
