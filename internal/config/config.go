// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Detection  DetectionConfig  `koanf:"detection"`
	GeoIP      GeoIPConfig      `koanf:"geoip"`
	AlertState AlertStateConfig `koanf:"alert_state"`
	Events     EventsConfig     `koanf:"events"`
	API        APIConfig        `koanf:"api"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds DuckDB session store settings.
type DatabaseConfig struct {
	// Path of the database file; ":memory:" keeps everything in RAM.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = DuckDB default
}

// DetectionConfig tunes the session security analytics.
type DetectionConfig struct {
	MaxPlausibleSpeedKmh float64       `koanf:"max_plausible_speed_kmh"`
	MaxObservations      int           `koanf:"max_observations"`
	LookbackWindow       time.Duration `koanf:"lookback_window"`
	GeoConcurrency       int           `koanf:"geo_concurrency"`

	BurstWindow          time.Duration `koanf:"burst_window"`
	BurstThreshold       int           `koanf:"burst_threshold"`
	RecurrenceWindow     time.Duration `koanf:"recurrence_window"`
	RecurrenceThreshold  int           `koanf:"recurrence_threshold"`
	ConcurrencyThreshold int           `koanf:"concurrency_threshold"`

	// ScanInterval runs background scans when positive.
	ScanInterval time.Duration `koanf:"scan_interval"`
	ScanTimeout  time.Duration `koanf:"scan_timeout"`
}

// GeoIPConfig selects and tunes geolocation providers.
//
// Providers are tried in the listed order. Known names are "static",
// "maxmind" and "ipapi". MaxMind needs an account ID and license key from
// https://www.maxmind.com/en/geolite2/signup and is skipped without them.
type GeoIPConfig struct {
	Providers              []string      `koanf:"providers"`
	MaxMindAccountID       string        `koanf:"maxmind_account_id"`
	MaxMindLicenseKey      string        `koanf:"maxmind_license_key"`
	MaxMindURL             string        `koanf:"maxmind_url"`
	IPAPIURL               string        `koanf:"ipapi_url"`
	IPAPIRequestsPerMinute int           `koanf:"ipapi_requests_per_minute"`
	RequestTimeout         time.Duration `koanf:"request_timeout"`
	CacheSize              int           `koanf:"cache_size"`
	CacheTTL               time.Duration `koanf:"cache_ttl"`
	Static                 []StaticRange `koanf:"static"`
	Breaker                BreakerConfig `koanf:"breaker"`
}

// StaticRange pins a network range to a known location.
type StaticRange struct {
	CIDR      string  `koanf:"cidr"`
	City      string  `koanf:"city"`
	Country   string  `koanf:"country"`
	Latitude  float64 `koanf:"latitude"`
	Longitude float64 `koanf:"longitude"`
}

// BreakerConfig tunes the per-provider circuit breakers.
type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// AlertStateConfig locates the BadgerDB alert moderation store.
type AlertStateConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// Retention bounds how long an alert's status is remembered after it
	// was last seen or changed.
	Retention  time.Duration `koanf:"retention"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// EventsConfig controls the in-process security event bus.
type EventsConfig struct {
	Enabled    bool  `koanf:"enabled"`
	BufferSize int64 `koanf:"buffer_size"`
}

// APIConfig holds pagination settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// SecurityConfig holds HTTP hardening settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}
