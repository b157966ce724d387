// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Security Analytics Metrics
	SecurityScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_scans_total",
			Help: "Total number of security analytics passes",
		},
		[]string{"kind", "result"}, // kind: impossible_travel, threats, risk
	)

	SecurityScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "security_scan_duration_seconds",
			Help:    "Duration of security analytics passes in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	SessionsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_sessions_analyzed_total",
			Help: "Total number of session observations fed into impossible travel analysis",
		},
	)

	ImpossibleTravelAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "impossible_travel_alerts_detected",
			Help: "Number of impossible travel alerts found by the latest pass",
		},
	)

	ImpossibleTravelNewAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "impossible_travel_new_alerts_total",
			Help: "Total number of impossible travel alerts seen for the first time",
		},
	)

	ThreatsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threats_detected_total",
			Help: "Total number of category level threats raised; an unchanged threat is counted once",
		},
		[]string{"type", "severity"},
	)

	AlertStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_status_changes_total",
			Help: "Total number of alert moderation status changes",
		},
		[]string{"status"},
	)

	// Geolocation Metrics
	GeoIPLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoip_lookups_total",
			Help: "Total number of geolocation provider lookups",
		},
		[]string{"provider", "result"}, // result: success, error, not_found
	)

	GeoIPLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geoip_lookup_duration_seconds",
			Help:    "Duration of geolocation provider lookups",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	GeoIPCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geoip_cache_hits_total",
			Help: "Total number of geolocation cache hits",
		},
	)

	GeoIPCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geoip_cache_misses_total",
			Help: "Total number of geolocation cache misses",
		},
	)

	// Event Bus Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_published_total",
			Help: "Total number of security events published",
		},
		[]string{"topic", "result"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordDBQuery records a DuckDB query.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSecurityScan records one analytics pass of the given kind.
func RecordSecurityScan(kind string, duration time.Duration, err error) {
	SecurityScansTotal.WithLabelValues(kind, resultLabel(err)).Inc()
	SecurityScanDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordGeoIPLookup records a single provider lookup. result is one of
// success, error or not_found.
func RecordGeoIPLookup(provider, result string, duration time.Duration) {
	GeoIPLookups.WithLabelValues(provider, result).Inc()
	GeoIPLookupDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordEventPublish(topic string, err error) {
	EventsPublished.WithLabelValues(topic, resultLabel(err)).Inc()
}
