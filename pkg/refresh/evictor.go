package refresh

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/skyradar/pkg/tracking"
)

const (
	// DefaultTTLMultiplier sets the stale TTL to three refresh intervals.
	DefaultTTLMultiplier = 3.0

	// DefaultSweepPeriod is the independent eviction timer period.
	DefaultSweepPeriod = 15 * time.Second
)

// EvictorOptions configures an Evictor.
type EvictorOptions struct {
	// TTLMultiplier scales the refresh interval into the stale TTL
	TTLMultiplier float64

	// Period of the slow sweep ticker
	Period time.Duration

	// MinInterval floors the refresh interval the TTL is derived from
	// (default: DefaultMinInterval). Use the scheduler's value.
	MinInterval time.Duration

	Logger zerolog.Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// Evictor removes records that have not been reported within the TTL.
// The scheduler calls Sweep after each successful ingest; Run sweeps on its
// own timer so tracks still expire while the provider keeps failing.
type Evictor struct {
	store      *tracking.Store
	settings   Settings
	multiplier float64
	period     time.Duration
	minIntvl   time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewEvictor creates an evictor for store.
func NewEvictor(store *tracking.Store, settings Settings, opts EvictorOptions) *Evictor {
	if opts.TTLMultiplier <= 0 {
		opts.TTLMultiplier = DefaultTTLMultiplier
	}
	if opts.Period <= 0 {
		opts.Period = DefaultSweepPeriod
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Evictor{
		store:      store,
		settings:   settings,
		multiplier: opts.TTLMultiplier,
		period:     opts.Period,
		minIntvl:   opts.MinInterval,
		log:        opts.Logger,
		now:        opts.Now,
	}
}

// TTL returns the current stale threshold. It follows the refresh interval,
// floored the same way the scheduler floors it.
func (e *Evictor) TTL() time.Duration {
	interval := e.settings.RefreshInterval()
	if interval < e.minIntvl {
		interval = e.minIntvl
	}
	return time.Duration(float64(interval) * e.multiplier)
}

// Sweep evicts stale records as of now and returns how many were removed.
func (e *Evictor) Sweep(now time.Time) int {
	removed := e.store.EvictStale(now, e.TTL())
	if removed > 0 {
		e.log.Info().Int("removed", removed).Int("remaining", e.store.Len()).Msg("stale aircraft evicted")
	}
	return removed
}

// Run sweeps every period until ctx is cancelled.
func (e *Evictor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Sweep(e.now())
		}
	}
}
