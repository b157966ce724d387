// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/imaginears/config.yaml",
	"/etc/imaginears/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied.
// These are overridden by the config file and then by env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/sessions.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Detection: DetectionConfig{
			MaxPlausibleSpeedKmh: 1000,
			MaxObservations:      500,
			LookbackWindow:       24 * time.Hour,
			GeoConcurrency:       8,
			BurstWindow:          5 * time.Minute,
			BurstThreshold:       5,
			RecurrenceWindow:     time.Hour,
			RecurrenceThreshold:  1,
			ConcurrencyThreshold: 10,
			ScanInterval:         time.Minute,
			ScanTimeout:          30 * time.Second,
		},
		GeoIP: GeoIPConfig{
			Providers:              []string{"static", "maxmind", "ipapi"},
			MaxMindURL:             "https://geolite.info/geoip/v2.1/city",
			IPAPIURL:               "http://ip-api.com/json",
			IPAPIRequestsPerMinute: 45, // ip-api.com free tier
			RequestTimeout:         5 * time.Second,
			CacheSize:              10000,
			CacheTTL:               24 * time.Hour,
			Static:                 []StaticRange{},
			Breaker: BreakerConfig{
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      2 * time.Minute,
				MinRequests:  10,
				FailureRatio: 0.6,
			},
		},
		AlertState: AlertStateConfig{
			Path:       "/data/alert-state",
			InMemory:   false,
			Retention:  30 * 24 * time.Hour,
			GCInterval: 10 * time.Minute,
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 256,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in defaults
//  2. Config File: optional YAML config file
//  3. Environment Variables: override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// DETECTION_MAX_SPEED_KMH -> detection.max_plausible_speed_kmh
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
	"geoip.providers",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings while YAML lists arrive already split.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
// Unmapped variables are ignored so the process environment cannot inject
// arbitrary keys.
var envMappings = map[string]string{
	// Server
	"http_port":        "server.port",
	"http_host":        "server.host",
	"http_timeout":     "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Detection
	"detection_max_speed_kmh":         "detection.max_plausible_speed_kmh",
	"detection_max_observations":      "detection.max_observations",
	"detection_lookback_window":       "detection.lookback_window",
	"detection_geo_concurrency":       "detection.geo_concurrency",
	"detection_burst_window":          "detection.burst_window",
	"detection_burst_threshold":       "detection.burst_threshold",
	"detection_recurrence_window":     "detection.recurrence_window",
	"detection_recurrence_threshold":  "detection.recurrence_threshold",
	"detection_concurrency_threshold": "detection.concurrency_threshold",
	"detection_scan_interval":         "detection.scan_interval",
	"detection_scan_timeout":          "detection.scan_timeout",

	// GeoIP
	"geoip_providers":           "geoip.providers",
	"maxmind_account_id":        "geoip.maxmind_account_id",
	"maxmind_license_key":       "geoip.maxmind_license_key",
	"maxmind_url":               "geoip.maxmind_url",
	"ipapi_url":                 "geoip.ipapi_url",
	"ipapi_requests_per_minute": "geoip.ipapi_requests_per_minute",
	"geoip_request_timeout":     "geoip.request_timeout",
	"geoip_cache_size":          "geoip.cache_size",
	"geoip_cache_ttl":           "geoip.cache_ttl",

	// Alert state
	"alert_state_path":      "alert_state.path",
	"alert_state_in_memory": "alert_state.in_memory",
	"alert_state_retention": "alert_state.retention",

	// Events
	"events_enabled":     "events.enabled",
	"events_buffer_size": "events.buffer_size",

	// API
	"api_default_page_size": "api.default_page_size",
	"api_max_page_size":     "api.max_page_size",

	// Security
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Returning "" tells koanf to skip the variable.
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}
