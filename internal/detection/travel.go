// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import (
	"context"
	"time"
)

// DefaultMaxPlausibleSpeedKmh approximates commercial jet cruise speed plus
// margin. Anything faster between two sessions is impossible travel.
const DefaultMaxPlausibleSpeedKmh = 1000.0

// minTimeDiffHours floors the elapsed time at one second so sessions that
// share a timestamp never divide by zero.
const minTimeDiffHours = 1.0 / 3600

// KmToMiles converts kilometres to statute miles.
const KmToMiles = 0.621371

// TravelAnalyzer decides whether two sessions of the same user are
// physically plausible. It is safe for concurrent use.
type TravelAnalyzer struct {
	resolver    GeoResolver
	maxSpeedKmh float64
}

// NewTravelAnalyzer creates an analyzer. A non-positive maxSpeedKmh selects
// DefaultMaxPlausibleSpeedKmh.
func NewTravelAnalyzer(resolver GeoResolver, maxSpeedKmh float64) *TravelAnalyzer {
	if maxSpeedKmh <= 0 {
		maxSpeedKmh = DefaultMaxPlausibleSpeedKmh
	}
	return &TravelAnalyzer{resolver: resolver, maxSpeedKmh: maxSpeedKmh}
}

// MaxPlausibleSpeedKmh returns the configured threshold.
func (a *TravelAnalyzer) MaxPlausibleSpeedKmh() float64 {
	return a.maxSpeedKmh
}

// Analyze resolves both session IPs and evaluates the pair. The caller is
// expected to pass sessions with valid, differing IPs in time order; an
// unparseable IP is simply treated as unresolved.
func (a *TravelAnalyzer) Analyze(ctx context.Context, prev, curr SessionObservation) TravelAnalysis {
	var from, to *GeoPoint
	if a.resolver != nil {
		if ip, ok := ParseIP(prev.IPAddress); ok {
			from = safeResolve(ctx, a.resolver, ip)
		}
		if ip, ok := ParseIP(curr.IPAddress); ok {
			to = safeResolve(ctx, a.resolver, ip)
		}
	}
	return a.Evaluate(from, to, prev.CreatedAt, curr.CreatedAt)
}

// Evaluate scores a pair of already resolved points. It is pure: the
// result depends only on its arguments and the threshold.
func (a *TravelAnalyzer) Evaluate(from, to *GeoPoint, prevAt, currAt time.Time) TravelAnalysis {
	hours := currAt.Sub(prevAt).Hours()
	if hours < minTimeDiffHours {
		hours = minTimeDiffHours
	}

	result := TravelAnalysis{TimeDiffHours: hours}
	if !from.usable() || !to.usable() {
		return result
	}

	result.Resolved = true
	result.DistanceKm = haversineDistance(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	result.RequiredSpeedKmh = result.DistanceKm / hours
	result.IsImpossible = result.RequiredSpeedKmh > a.maxSpeedKmh
	return result
}
