// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

// Package detection implements session security analytics: impossible
// travel between consecutive sessions of a user, category level threats
// (suspicious bursts, repeated location anomalies, excessive concurrency)
// and per-user risk scores.
//
// Architecture:
//
//	SessionSource -> Scanner -> Aggregator -> TravelAnalyzer
//	                    |            |
//	                    v            v
//	          AlertStatusStore   GeoResolver
//	          EventPublisher
//
// The Aggregator and TravelAnalyzer hold no mutable state; every call
// recomputes from its inputs. Geolocation is injected through GeoResolver
// and resolved once per distinct IP per pass, concurrently. Lookups that
// fail simply leave a location unknown, and a pair with an unknown side
// is never reported as impossible.
//
// The Scanner binds the analytics to storage: it loads a bounded window
// of sessions, overlays moderation status kept by the AlertStatusStore and
// publishes alerts seen for the first time.
package detection
