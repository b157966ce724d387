// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import (
	"context"
	"math"
	"net/netip"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
)

const earthRadiusKm = 6371.0

// GeoResolver maps an IP address to a location. Implementations are
// best-effort: they return nil when the address cannot be located and must
// not fail the caller. A panicking resolver is treated as returning nil.
type GeoResolver interface {
	Resolve(ctx context.Context, ip netip.Addr) *GeoPoint
}

// GeoResolverFunc adapts a function to GeoResolver.
type GeoResolverFunc func(ctx context.Context, ip netip.Addr) *GeoPoint

func (f GeoResolverFunc) Resolve(ctx context.Context, ip netip.Addr) *GeoPoint {
	return f(ctx, ip)
}

// ParseIP validates an IPv4 or IPv6 literal. IPv4-mapped IPv6 addresses
// are unmapped so both spellings of one address compare equal.
func ParseIP(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// haversineDistance returns the great-circle distance in km.
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// safeResolve calls r and converts a panic into an unresolved location.
func safeResolve(ctx context.Context, r GeoResolver, ip netip.Addr) (p *GeoPoint) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Ctx(ctx).Warn().
				Str("ip", ip.String()).
				Interface("panic", rec).
				Msg("geo resolver panicked; treating location as unknown")
			p = nil
		}
	}()
	return r.Resolve(ctx, ip)
}

// resolveAll looks up every address once, at most limit at a time. The
// returned map has an entry (possibly nil) for each address. It only
// fails when ctx is cancelled.
func resolveAll(ctx context.Context, r GeoResolver, ips []netip.Addr, limit int) (map[netip.Addr]*GeoPoint, error) {
	points := make(map[netip.Addr]*GeoPoint, len(ips))
	if len(ips) == 0 {
		return points, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, ip := range ips {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := safeResolve(gctx, r, ip)
			mu.Lock()
			points[ip] = p
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
