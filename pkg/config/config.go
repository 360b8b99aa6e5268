package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/unklstewy/skyradar/pkg/coordinates"
)

// EnvPrefix prefixes every environment override, e.g.
// SKYRADAR_REFRESH_INTERVAL_SECONDS=45 or SKYRADAR_ADSB_PASSWORD=secret.
const EnvPrefix = "SKYRADAR"

// Limits applied by Validate.
const (
	MinRefreshIntervalSeconds = 10
	MinRadarRadiusKm          = 1.0
	MaxRadarRadiusKm          = 100.0
	MaxTrailLength            = 50
	MinZoom                   = 0.1
	MaxZoom                   = 5.0
)

// Config represents the complete application configuration.
type Config struct {
	Observer    ObserverConfig    `json:"observer" mapstructure:"observer"`
	ADSB        ADSBConfig        `json:"adsb" mapstructure:"adsb"`
	Refresh     RefreshConfig     `json:"refresh" mapstructure:"refresh"`
	Radar       RadarConfig       `json:"radar" mapstructure:"radar"`
	UI          UIConfig          `json:"ui" mapstructure:"ui"`
	Geolocation GeolocationConfig `json:"geolocation" mapstructure:"geolocation"`
	Server      ServerConfig      `json:"server" mapstructure:"server"`
	Database    DatabaseConfig    `json:"database" mapstructure:"database"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// ObserverConfig contains the observer's geographic location.
// The radar is centred here.
type ObserverConfig struct {
	// Name is a friendly identifier for this observer location
	Name string `json:"name" mapstructure:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude" mapstructure:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude" mapstructure:"longitude"`

	// AutoLocate asks the IP geolocation service for the location at startup.
	// The configured coordinates remain the fallback.
	AutoLocate bool `json:"auto_locate" mapstructure:"auto_locate"`
}

// Location returns the observer position.
func (o ObserverConfig) Location() coordinates.Geographic {
	return coordinates.Geographic{Latitude: o.Latitude, Longitude: o.Longitude}
}

// ADSBConfig selects and configures the aircraft data provider.
type ADSBConfig struct {
	// Provider is "opensky", "airplanes.live" or "mock"
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL overrides the provider's API endpoint
	BaseURL string `json:"base_url,omitempty" mapstructure:"base_url"`

	// Username and Password are OpenSky credentials (optional).
	// Prefer SKYRADAR_ADSB_PASSWORD over storing the password in the file.
	Username string `json:"username,omitempty" mapstructure:"username"`
	Password string `json:"password,omitempty" mapstructure:"password"`

	// TimeoutSeconds per request
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`

	// RateLimitSeconds is the minimum time between API calls in seconds
	// 0 = provider default
	RateLimitSeconds float64 `json:"rate_limit_seconds" mapstructure:"rate_limit_seconds"`
}

// Timeout returns the request timeout.
func (a ADSBConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// MinInterval returns the minimum spacing between requests.
func (a ADSBConfig) MinInterval() time.Duration {
	return time.Duration(a.RateLimitSeconds * float64(time.Second))
}

// RefreshConfig controls the fetch schedule.
type RefreshConfig struct {
	// IntervalSeconds between successful fetches (minimum 10, default 30)
	IntervalSeconds int `json:"interval_seconds" mapstructure:"interval_seconds"`

	// AutoRefresh runs the scheduler; when false only manual refreshes fetch
	AutoRefresh bool `json:"auto_refresh" mapstructure:"auto_refresh"`

	// JitterSeconds bounds the random delay added to each interval
	JitterSeconds float64 `json:"jitter_seconds" mapstructure:"jitter_seconds"`

	// TTLMultiplier sets the stale TTL as a multiple of the interval
	TTLMultiplier float64 `json:"ttl_multiplier" mapstructure:"ttl_multiplier"`

	// SweepSeconds is the period of the independent eviction timer
	SweepSeconds int `json:"sweep_seconds" mapstructure:"sweep_seconds"`

	// MaxHorizonSeconds caps interpolation; 0 follows the interval
	MaxHorizonSeconds int `json:"max_horizon_seconds" mapstructure:"max_horizon_seconds"`

	Backoff BackoffConfig `json:"backoff" mapstructure:"backoff"`
}

// Interval returns the refresh interval.
func (r RefreshConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// MaxHorizon returns the interpolation cap.
func (r RefreshConfig) MaxHorizon() time.Duration {
	if r.MaxHorizonSeconds <= 0 {
		return r.Interval()
	}
	return time.Duration(r.MaxHorizonSeconds) * time.Second
}

// BackoffConfig configures retry delays after failed fetches.
type BackoffConfig struct {
	InitialSeconds float64 `json:"initial_seconds" mapstructure:"initial_seconds"`
	MaxSeconds     float64 `json:"max_seconds" mapstructure:"max_seconds"`
	Multiplier     float64 `json:"multiplier" mapstructure:"multiplier"`
}

// RadarConfig controls the radar display.
type RadarConfig struct {
	// RadiusKm is the range shown at zoom 1 and the fetch radius (1-100)
	RadiusKm float64 `json:"radius_km" mapstructure:"radius_km"`

	// Zoom is the initial zoom factor (0.1-5)
	Zoom float64 `json:"zoom" mapstructure:"zoom"`

	// RangePolicy is "exclude" or "clamp" for aircraft beyond the range
	RangePolicy string `json:"range_policy" mapstructure:"range_policy"`

	ShowTrails bool `json:"show_trails" mapstructure:"show_trails"`

	// TrailLength is the number of positions kept per aircraft (max 50)
	TrailLength int `json:"trail_length" mapstructure:"trail_length"`
}

// Policy returns the parsed range policy.
func (r RadarConfig) Policy() coordinates.RangePolicy {
	return coordinates.ParseRangePolicy(r.RangePolicy)
}

// Theme selects the front-end palette.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
	ThemeAuto  Theme = "auto"
)

// Resolve turns ThemeAuto into dark or light given the terminal background.
func (t Theme) Resolve(darkBackground bool) Theme {
	if t == ThemeDark || t == ThemeLight {
		return t
	}
	if darkBackground {
		return ThemeDark
	}
	return ThemeLight
}

// Next cycles dark -> light -> auto.
func (t Theme) Next() Theme {
	switch t {
	case ThemeDark:
		return ThemeLight
	case ThemeLight:
		return ThemeAuto
	default:
		return ThemeDark
	}
}

// UIConfig holds front-end preferences.
type UIConfig struct {
	Theme Theme `json:"theme" mapstructure:"theme"`

	// FPS is the render tick rate of the terminal front-ends
	FPS int `json:"fps" mapstructure:"fps"`
}

// GeolocationConfig configures the IP geolocation lookup.
type GeolocationConfig struct {
	URL            string `json:"url" mapstructure:"url"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port" mapstructure:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host" mapstructure:"host"`

	// AllowedOrigins for CORS
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig contains the optional position history database settings.
type DatabaseConfig struct {
	// Enabled turns on position history recording
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Host is the database server hostname
	Host string `json:"host" mapstructure:"host"`

	// Port is the database server port
	Port int `json:"port" mapstructure:"port"`

	// Database is the database name
	Database string `json:"database" mapstructure:"database"`

	// Username for database authentication
	Username string `json:"username" mapstructure:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password,omitempty" mapstructure:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode" mapstructure:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns" mapstructure:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns" mapstructure:"max_idle_conns"`

	// RetentionHours is how long position history is kept
	RetentionHours int `json:"retention_hours" mapstructure:"retention_hours"`
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
	)
}

// Retention returns the history retention period.
func (d DatabaseConfig) Retention() time.Duration {
	return time.Duration(d.RetentionHours) * time.Hour
}

// LoggingConfig controls the log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" mapstructure:"level"`

	// File is the rotating log file; empty uses <config dir>/skyradar/skyradar.log
	File string `json:"file" mapstructure:"file"`

	MaxSizeMB  int `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int `json:"max_age_days" mapstructure:"max_age_days"`

	// Console also writes human-readable logs to stderr.
	// Terminal front-ends ignore it since they own the screen.
	Console bool `json:"console" mapstructure:"console"`
}

// DefaultPath returns <user config dir>/skyradar/config.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "skyradar", "config.json"), nil
}

// setDefaults registers every key with its default so that environment
// overrides apply to all of them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("observer.name", "Default")
	v.SetDefault("observer.latitude", 51.5074)
	v.SetDefault("observer.longitude", -0.1278)
	v.SetDefault("observer.auto_locate", true)

	v.SetDefault("adsb.provider", "opensky")
	v.SetDefault("adsb.base_url", "")
	v.SetDefault("adsb.username", "")
	v.SetDefault("adsb.password", "")
	v.SetDefault("adsb.timeout_seconds", 30)
	v.SetDefault("adsb.rate_limit_seconds", 0.0)

	v.SetDefault("refresh.interval_seconds", 30)
	v.SetDefault("refresh.auto_refresh", true)
	v.SetDefault("refresh.jitter_seconds", 3.0)
	v.SetDefault("refresh.ttl_multiplier", 3.0)
	v.SetDefault("refresh.sweep_seconds", 15)
	v.SetDefault("refresh.max_horizon_seconds", 0)
	v.SetDefault("refresh.backoff.initial_seconds", 5.0)
	v.SetDefault("refresh.backoff.max_seconds", 300.0)
	v.SetDefault("refresh.backoff.multiplier", 2.0)

	v.SetDefault("radar.radius_km", 8.0)
	v.SetDefault("radar.zoom", 1.0)
	v.SetDefault("radar.range_policy", "exclude")
	v.SetDefault("radar.show_trails", true)
	v.SetDefault("radar.trail_length", 10)

	v.SetDefault("ui.theme", string(ThemeAuto))
	v.SetDefault("ui.fps", 4)

	v.SetDefault("geolocation.url", "http://ip-api.com/json")
	v.SetDefault("geolocation.timeout_seconds", 5)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "skyradar")
	v.SetDefault("database.username", "skyradar")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.retention_hours", 24)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("logging.console", false)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from a JSON file and applies SKYRADAR_*
// environment overrides. If the file doesn't exist, defaults are used.
// The result is validated.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate clamps numeric settings into their allowed ranges and rejects
// values that cannot be repaired.
func (c *Config) Validate() error {
	if !c.Observer.Location().Valid() {
		return fmt.Errorf("invalid observer location %.4f, %.4f", c.Observer.Latitude, c.Observer.Longitude)
	}

	switch c.ADSB.Provider {
	case "opensky", "airplanes.live", "mock":
	default:
		return fmt.Errorf("unknown adsb provider %q (expected opensky, airplanes.live or mock)", c.ADSB.Provider)
	}

	switch c.UI.Theme {
	case ThemeDark, ThemeLight, ThemeAuto:
	case "":
		c.UI.Theme = ThemeAuto
	default:
		return fmt.Errorf("unknown theme %q (expected dark, light or auto)", c.UI.Theme)
	}

	switch c.Radar.RangePolicy {
	case "exclude", "clamp":
	case "":
		c.Radar.RangePolicy = "exclude"
	default:
		return fmt.Errorf("unknown range policy %q (expected exclude or clamp)", c.Radar.RangePolicy)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	if c.Refresh.IntervalSeconds < MinRefreshIntervalSeconds {
		c.Refresh.IntervalSeconds = MinRefreshIntervalSeconds
	}
	if c.Refresh.TTLMultiplier < 1 {
		c.Refresh.TTLMultiplier = 3
	}
	if c.Refresh.JitterSeconds < 0 {
		c.Refresh.JitterSeconds = 0
	}
	if c.Refresh.MaxHorizonSeconds < 0 {
		c.Refresh.MaxHorizonSeconds = 0
	}
	c.Radar.RadiusKm = clamp(c.Radar.RadiusKm, MinRadarRadiusKm, MaxRadarRadiusKm)
	c.Radar.Zoom = clamp(c.Radar.Zoom, MinZoom, MaxZoom)
	if c.Radar.TrailLength < 0 {
		c.Radar.TrailLength = 0
	}
	if c.Radar.TrailLength > MaxTrailLength {
		c.Radar.TrailLength = MaxTrailLength
	}
	if c.UI.FPS <= 0 {
		c.UI.FPS = 4
	}

	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
