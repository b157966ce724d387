// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateDetection(); err != nil {
		return err
	}

	if err := c.validateGeoIP(); err != nil {
		return err
	}

	if err := c.validateAlertState(); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0")
	}
	return nil
}

// validateDetection validates analytics thresholds. Zero values are
// replaced by package defaults downstream, negative ones are rejected.
func (c *Config) validateDetection() error {
	d := c.Detection
	if d.MaxPlausibleSpeedKmh < 0 {
		return fmt.Errorf("DETECTION_MAX_SPEED_KMH must be >= 0")
	}
	if d.MaxObservations < 0 {
		return fmt.Errorf("DETECTION_MAX_OBSERVATIONS must be >= 0")
	}
	if d.LookbackWindow < 0 {
		return fmt.Errorf("DETECTION_LOOKBACK_WINDOW must be >= 0")
	}
	if d.GeoConcurrency < 0 {
		return fmt.Errorf("DETECTION_GEO_CONCURRENCY must be >= 0")
	}
	if d.BurstThreshold < 0 || d.RecurrenceThreshold < 0 || d.ConcurrencyThreshold < 0 {
		return fmt.Errorf("detection thresholds must be >= 0")
	}
	if d.BurstWindow < 0 || d.RecurrenceWindow < 0 {
		return fmt.Errorf("detection windows must be >= 0")
	}
	if d.ScanInterval < 0 || d.ScanTimeout < 0 {
		return fmt.Errorf("DETECTION_SCAN_INTERVAL and DETECTION_SCAN_TIMEOUT must be >= 0")
	}
	return nil
}

// validGeoIPProviders defines the known geolocation provider names
var validGeoIPProviders = map[string]bool{
	"static":  true,
	"maxmind": true,
	"ipapi":   true,
}

func (c *Config) validateGeoIP() error {
	for _, name := range c.GeoIP.Providers {
		if !validGeoIPProviders[name] {
			return fmt.Errorf("GEOIP_PROVIDERS contains unknown provider %q (valid: static, maxmind, ipapi)", name)
		}
	}
	if err := c.validateMaxMindCredentials(); err != nil {
		return err
	}
	if c.GeoIP.IPAPIRequestsPerMinute < 0 {
		return fmt.Errorf("IPAPI_REQUESTS_PER_MINUTE must be >= 0")
	}
	if c.GeoIP.CacheSize < 0 {
		return fmt.Errorf("GEOIP_CACHE_SIZE must be >= 0")
	}
	if c.GeoIP.Breaker.FailureRatio < 0 || c.GeoIP.Breaker.FailureRatio > 1 {
		return fmt.Errorf("geoip.breaker.failure_ratio must be between 0 and 1")
	}
	return c.validateStaticRanges()
}

// validateMaxMindCredentials rejects half-configured or placeholder credentials.
func (c *Config) validateMaxMindCredentials() error {
	id, key := c.GeoIP.MaxMindAccountID, c.GeoIP.MaxMindLicenseKey
	if (id == "") != (key == "") {
		return fmt.Errorf("MAXMIND_ACCOUNT_ID and MAXMIND_LICENSE_KEY must be set together")
	}
	if key != "" && containsPlaceholder(key) {
		return fmt.Errorf("MAXMIND_LICENSE_KEY appears to be a placeholder value")
	}
	return nil
}

func (c *Config) validateStaticRanges() error {
	for i, r := range c.GeoIP.Static {
		if _, err := netip.ParsePrefix(r.CIDR); err != nil {
			if _, err := netip.ParseAddr(r.CIDR); err != nil {
				return fmt.Errorf("geoip.static[%d].cidr %q is not a valid IP or CIDR", i, r.CIDR)
			}
		}
		if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
			return fmt.Errorf("geoip.static[%d] has out-of-range coordinates", i)
		}
	}
	return nil
}

func (c *Config) validateAlertState() error {
	if !c.AlertState.InMemory && c.AlertState.Path == "" {
		return fmt.Errorf("ALERT_STATE_PATH is required unless ALERT_STATE_IN_MEMORY=true")
	}
	if c.AlertState.Retention < 0 {
		return fmt.Errorf("ALERT_STATE_RETENTION must be >= 0")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("API_DEFAULT_PAGE_SIZE must be >= 1")
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("API_MAX_PAGE_SIZE must be >= API_DEFAULT_PAGE_SIZE")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if err := c.validateCORS(); err != nil {
		return err
	}
	return c.validateRateLimits()
}

// validateCORS rejects wildcard origins in production.
func (c *Config) validateCORS() error {
	if c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production. " +
			"Set specific origins: CORS_ORIGINS=https://yourdomain.com,https://app.yourdomain.com")
	}
	return nil
}

// hasWildcardCORS checks if CORS is configured with wildcard origins
func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// Rate limit constants
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns indicate a credential that was never filled in.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_LICENSE",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
