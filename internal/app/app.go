// Package app wires the tracker together: provider, store, scheduler,
// evictor, radar view and optional history, all driven by the live config.
// Every front-end in cmd/ builds one App and renders from it.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/skyradar/internal/db"
	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/config"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/geolocation"
	"github.com/unklstewy/skyradar/pkg/radar"
	"github.com/unklstewy/skyradar/pkg/refresh"
	"github.com/unklstewy/skyradar/pkg/tracking"
)

// CleanupPeriod is how often old history is deleted.
const CleanupPeriod = 10 * time.Minute

// Options overrides collaborators, mainly for tests.
type Options struct {
	// Source replaces the provider selected by config
	Source adsb.DataSource

	// Locator replaces the ip-api locator
	Locator geolocation.Locator

	// OnStatus receives every scheduler status change
	OnStatus func(refresh.Status)

	Now func() time.Time
}

// App is a running tracker.
type App struct {
	Config    *config.Live
	Store     *tracking.Store
	View      *radar.View
	Scheduler *refresh.Scheduler
	Evictor   *refresh.Evictor
	Source    adsb.DataSource

	// History is nil when the database is disabled or unreachable
	History *db.HistoryRepository

	database *db.DB
	locator  geolocation.Locator
	log      zerolog.Logger
	now      func() time.Time

	// auto carries auto-refresh toggles, manual carries refresh requests
	// made while auto-refresh is off
	auto   chan bool
	manual chan struct{}

	mu      sync.Mutex
	running bool
}

// NewSource creates the DataSource selected by cfg.
func NewSource(cfg config.ADSBConfig) (adsb.DataSource, error) {
	switch cfg.Provider {
	case "opensky":
		return adsb.NewOpenSkyClient(adsb.OpenSkyConfig{
			BaseURL:     cfg.BaseURL,
			Username:    cfg.Username,
			Password:    cfg.Password,
			Timeout:     cfg.Timeout(),
			MinInterval: cfg.MinInterval(),
		}), nil
	case "airplanes.live":
		return adsb.NewAirplanesLiveClient(cfg.BaseURL, cfg.Timeout(), cfg.MinInterval()), nil
	case "mock":
		return adsb.NewMockSource(nil), nil
	default:
		return nil, fmt.Errorf("unsupported adsb provider: %s", cfg.Provider)
	}
}

// New builds an App from the live configuration. A configured database that
// cannot be reached is logged and history is disabled.
func New(ctx context.Context, live *config.Live, logger zerolog.Logger, opts Options) (*App, error) {
	cfg := live.Config()
	if opts.Now == nil {
		opts.Now = time.Now
	}

	source := opts.Source
	if source == nil {
		var err error
		if source, err = NewSource(cfg.ADSB); err != nil {
			return nil, err
		}
	}

	locator := opts.Locator
	if locator == nil {
		locator = geolocation.NewIPAPIClient(cfg.Geolocation.URL, time.Duration(cfg.Geolocation.TimeoutSeconds)*time.Second)
	}

	trail := cfg.Radar.TrailLength
	if trail == 0 {
		trail = -1
	}
	store := tracking.NewStore(tracking.StoreOptions{
		TrailLength:  trail,
		Interpolator: tracking.Interpolator{MaxHorizon: cfg.Refresh.MaxHorizon(), UseReported: true},
		Logger:       logger.With().Str("component", "store").Logger(),
	})

	view, err := radar.NewView(radar.Options{
		Observer:   cfg.Observer.Location(),
		MaxRangeKm: cfg.Radar.RadiusKm,
		Zoom:       cfg.Radar.Zoom,
		Policy:     cfg.Radar.Policy(),
		ShowTrails: cfg.Radar.ShowTrails,
	})
	if err != nil {
		return nil, err
	}

	evictor := refresh.NewEvictor(store, live, refresh.EvictorOptions{
		TTLMultiplier: cfg.Refresh.TTLMultiplier,
		Period:        time.Duration(cfg.Refresh.SweepSeconds) * time.Second,
		MinInterval:   config.MinRefreshIntervalSeconds * time.Second,
		Logger:        logger.With().Str("component", "evictor").Logger(),
		Now:           opts.Now,
	})

	a := &App{
		Config:  live,
		Store:   store,
		View:    view,
		Evictor: evictor,
		Source:  source,
		locator: locator,
		log:     logger,
		now:     opts.Now,
		auto:    make(chan bool, 1),
		manual:  make(chan struct{}, 1),
	}

	var sinks []refresh.Sink
	if cfg.Database.Enabled {
		database, err := db.ConnectWithRetry(ctx, cfg.Database, 3, time.Second, logger)
		if err == nil {
			err = database.InitSchema(ctx)
			if err != nil {
				database.Close()
			}
		}
		if err != nil {
			logger.Error().Err(err).Msg("Position history disabled")
		} else {
			a.database = database
			a.History = db.NewHistoryRepository(database)
			sinks = append(sinks, a.History)
		}
	}

	jitter := time.Duration(cfg.Refresh.JitterSeconds * float64(time.Second))
	if jitter == 0 {
		jitter = -1
	}
	a.Scheduler = refresh.NewScheduler(refresh.Options{
		Source:   source,
		Store:    store,
		Evictor:  evictor,
		Settings: live,
		Backoff: refresh.Backoff{
			Initial:           seconds(cfg.Refresh.Backoff.InitialSeconds),
			Max:               seconds(cfg.Refresh.Backoff.MaxSeconds),
			Multiplier:        cfg.Refresh.Backoff.Multiplier,
			RespectRetryAfter: true,
		},
		Jitter:      jitter,
		MinInterval: config.MinRefreshIntervalSeconds * time.Second,
		Sinks:       sinks,
		OnStatus:    opts.OnStatus,
		Logger:      logger,
		Now:         opts.Now,
	})

	live.OnChange(a.apply)
	return a, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// apply pushes a settings change into the running components.
// Moving the observer triggers a refresh of the new area.
func (a *App) apply(cfg config.Config) {
	moved := a.View.Observer() != cfg.Observer.Location()
	a.View.SetObserver(cfg.Observer.Location())
	a.View.SetMaxRange(cfg.Radar.RadiusKm)
	a.View.SetShowTrails(cfg.Radar.ShowTrails)
	a.Store.SetMaxHorizon(cfg.Refresh.MaxHorizon())

	a.setAuto(cfg.Refresh.AutoRefresh)
	if moved {
		a.RefreshNow()
	}
}

// setAuto queues an auto-refresh toggle, replacing one not yet consumed.
func (a *App) setAuto(on bool) {
	for {
		select {
		case a.auto <- on:
			return
		default:
			select {
			case <-a.auto:
			default:
			}
		}
	}
}

// Log returns the application logger.
func (a *App) Log() zerolog.Logger {
	return a.log
}

// RefreshNow requests an immediate fetch whether or not auto-refresh is on.
func (a *App) RefreshNow() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		a.Scheduler.RefreshNow()
		return
	}
	a.requestManual()
}

func (a *App) requestManual() {
	select {
	case a.manual <- struct{}{}:
	default:
	}
}

// Records advances interpolation to now and returns the tracked records.
func (a *App) Records() []tracking.Record {
	a.Store.Advance(a.now())
	return a.Store.Snapshot()
}

// Points returns the radar points for vp at the current time.
func (a *App) Points(vp coordinates.Viewport) []radar.Point {
	return a.View.Points(a.Records(), vp)
}

// Locate resolves the observer by IP and stores the result as the last-known
// location. On failure the configured location stays in use.
func (a *App) Locate(ctx context.Context) error {
	cfg := a.Config.Config()
	fallback := geolocation.Location{Geographic: cfg.Observer.Location(), Name: cfg.Observer.Name}

	loc, err := geolocation.Resolve(ctx, a.locator, fallback, a.log)
	if err != nil {
		return err
	}
	if err := a.Config.SetObserver(loc.Geographic, loc.Name); err != nil {
		a.log.Warn().Err(err).Msg("Failed to store located observer")
	}
	return nil
}

// Run starts the background work and blocks until ctx is cancelled or a
// component fails. Cancellation is a clean shutdown and returns nil.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	cfg := a.Config.Config()

	if cfg.Observer.AutoLocate {
		g.Go(func() error {
			// Failure keeps the configured location
			_ = a.Locate(ctx)
			return nil
		})
	}

	g.Go(func() error {
		return a.Evictor.Run(ctx)
	})

	g.Go(func() error {
		return a.superviseScheduler(ctx, cfg.Refresh.AutoRefresh)
	})

	if a.database != nil {
		g.Go(func() error {
			return a.cleanupHistory(ctx, cfg.Database.Retention())
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// superviseScheduler runs the scheduler while auto-refresh is on and serves
// manual refreshes while it is off.
func (a *App) superviseScheduler(ctx context.Context, auto bool) error {
	for {
		if auto {
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			a.setRunning(true)
			go func() { done <- a.Scheduler.Run(runCtx) }()

			for auto {
				select {
				case <-ctx.Done():
					cancel()
					<-done
					a.setRunning(false)
					return ctx.Err()
				case auto = <-a.auto:
				}
			}
			cancel()
			<-done
			a.schedulerStopped()
			a.log.Info().Msg("Auto refresh disabled")
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case auto = <-a.auto:
			if auto {
				a.log.Info().Msg("Auto refresh enabled")
			}
		case <-a.manual:
			a.Scheduler.Once(ctx)
		}
	}
}

// schedulerStopped marks the scheduler loop as stopped. A refresh request
// it never consumed moves to the manual queue.
func (a *App) schedulerStopped() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.running = false
	if a.Scheduler.ClearRefreshRequest() {
		a.requestManual()
	}
}

func (a *App) setRunning(running bool) {
	a.mu.Lock()
	a.running = running
	a.mu.Unlock()
}

// cleanupHistory deletes expired history on a slow ticker.
func (a *App) cleanupHistory(ctx context.Context, retention time.Duration) error {
	ticker := time.NewTicker(CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := db.HealthCheck(ctx, a.database); err != nil {
				a.log.Warn().Err(err).Msg("History database unhealthy, skipping cleanup")
				continue
			}
			deleted, err := a.database.CleanupOldData(ctx, a.now(), retention)
			if err != nil {
				a.log.Error().Err(err).Msg("History cleanup failed")
				continue
			}
			a.log.Debug().Int64("deleted", deleted).Msg("History cleaned up")
		}
	}
}

// Health checks the history database and returns its row counts. Both
// results are nil when history is disabled.
func (a *App) Health(ctx context.Context) (*db.Stats, error) {
	if a.database == nil {
		return nil, nil
	}
	if err := db.HealthCheck(ctx, a.database); err != nil {
		return nil, err
	}
	stats, err := a.database.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Close releases the provider and the database.
func (a *App) Close() error {
	var errs []error
	if err := a.Source.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
