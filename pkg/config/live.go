package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/unklstewy/skyradar/pkg/coordinates"
)

// Live holds the configuration shared by the running application.
// Front-ends edit it through Update; the scheduler and evictor read the
// current values at every cycle, so changes apply without a restart.
type Live struct {
	mu        sync.RWMutex
	cfg       Config
	path      string
	listeners []func(Config)
}

// NewLive wraps cfg. When path is not empty every Update is saved there.
func NewLive(cfg *Config, path string) *Live {
	return &Live{cfg: *cfg, path: path}
}

// LoadLive loads path, or DefaultPath when path is empty, and returns a Live
// that saves changes back to the same file.
func LoadLive(path string) (*Live, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewLive(cfg, path), nil
}

// Config returns a copy of the current configuration.
func (l *Live) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Path returns where changes are persisted.
func (l *Live) Path() string {
	return l.path
}

// RefreshInterval returns the current refresh interval.
func (l *Live) RefreshInterval() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Refresh.Interval()
}

// ObserverLocation returns the current observer position.
func (l *Live) ObserverLocation() coordinates.Geographic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Observer.Location()
}

// RadarRadiusKm returns the current fetch and display radius.
func (l *Live) RadarRadiusKm() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Radar.RadiusKm
}

// OnChange registers fn to run after every successful Update.
func (l *Live) OnChange(fn func(Config)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Update applies fn to a copy of the configuration, validates it, persists
// it and then publishes it. On error nothing changes.
func (l *Live) Update(fn func(*Config)) error {
	l.mu.Lock()
	next := l.cfg
	next.Server.AllowedOrigins = append([]string(nil), l.cfg.Server.AllowedOrigins...)
	fn(&next)
	if err := next.Validate(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("invalid settings: %w", err)
	}
	if l.path != "" {
		if err := next.Save(l.path); err != nil {
			l.mu.Unlock()
			return err
		}
	}
	l.cfg = next
	listeners := append([]func(Config){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

// SetObserver changes the observer location.
func (l *Live) SetObserver(loc coordinates.Geographic, name string) error {
	return l.Update(func(c *Config) {
		c.Observer.Latitude = loc.Latitude
		c.Observer.Longitude = loc.Longitude
		if name != "" {
			c.Observer.Name = name
		}
	})
}

// Reset restores the defaults, keeping the observer location and credentials.
func (l *Live) Reset() error {
	return l.Update(func(c *Config) {
		def := DefaultConfig()
		def.Observer = c.Observer
		def.ADSB.Username = c.ADSB.Username
		def.ADSB.Password = c.ADSB.Password
		def.Database = c.Database
		def.Logging = c.Logging
		*c = *def
	})
}
