// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package geoip

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/metrics"
)

// Cache defaults.
const (
	DefaultCacheSize = 10000
	DefaultCacheTTL  = 24 * time.Hour
)

// cacheEntry holds a lookup outcome; a nil point records a confirmed miss.
type cacheEntry struct {
	point *detection.GeoPoint
}

// Resolver chains providers behind a shared cache.
type Resolver struct {
	providers []*breakerProvider
	cache     *expirable.LRU[netip.Addr, cacheEntry]
}

// ResolverOptions configures NewResolver.
type ResolverOptions struct {
	CacheSize int
	CacheTTL  time.Duration
	Breaker   BreakerSettings
}

// NewResolver creates a resolver trying providers in the given order.
func NewResolver(opts ResolverOptions, providers ...Provider) *Resolver {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Breaker.MinRequests == 0 {
		opts.Breaker = DefaultBreakerSettings()
	}

	wrapped := make([]*breakerProvider, 0, len(providers))
	for _, p := range providers {
		wrapped = append(wrapped, withBreaker(p, opts.Breaker))
	}
	return &Resolver{
		providers: wrapped,
		cache:     expirable.NewLRU[netip.Addr, cacheEntry](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// ProviderNames lists the configured providers in lookup order.
func (r *Resolver) ProviderNames() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Lookup returns the location of ip. Private addresses are answered only
// by static ranges and otherwise fail with ErrPrivateIP; no network
// provider sees them. Confirmed misses are cached like hits; transient
// provider errors are not.
func (r *Resolver) Lookup(ctx context.Context, ip netip.Addr) (*detection.GeoPoint, error) {
	ip = ip.Unmap()
	if IsPrivateIP(ip) {
		return r.lookupStatic(ctx, ip)
	}

	if entry, ok := r.cache.Get(ip); ok {
		metrics.GeoIPCacheHits.Inc()
		if entry.point == nil {
			return nil, ErrNotFound
		}
		point := *entry.point
		return &point, nil
	}
	metrics.GeoIPCacheMisses.Inc()

	point, err := r.tryProviders(ctx, ip)
	switch {
	case err == nil:
		cached := *point
		r.cache.Add(ip, cacheEntry{point: &cached})
	case errors.Is(err, ErrNotFound):
		r.cache.Add(ip, cacheEntry{})
	}
	return point, err
}

// lookupStatic consults only the static tables, so office LANs and VPN
// pools in RFC 1918 space can still be placed.
func (r *Resolver) lookupStatic(ctx context.Context, ip netip.Addr) (*detection.GeoPoint, error) {
	for _, p := range r.providers {
		static, ok := p.Provider.(*StaticProvider)
		if !ok || !static.IsAvailable() {
			continue
		}
		if point, err := static.Lookup(ctx, ip); err == nil {
			return point, nil
		}
	}
	return nil, ErrPrivateIP
}

func (r *Resolver) tryProviders(ctx context.Context, ip netip.Addr) (*detection.GeoPoint, error) {
	var lastErr error
	notFound := false

	for _, p := range r.providers {
		if !p.IsAvailable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		point, err := p.Lookup(ctx, ip)
		switch {
		case err == nil:
			metrics.RecordGeoIPLookup(p.Name(), "success", time.Since(start))
			return point, nil
		case errors.Is(err, ErrNotFound):
			metrics.RecordGeoIPLookup(p.Name(), "not_found", time.Since(start))
			notFound = true
		default:
			metrics.RecordGeoIPLookup(p.Name(), "error", time.Since(start))
			logging.Ctx(ctx).Debug().Err(err).Str("provider", p.Name()).Str("ip", ip.String()).Msg("geoip provider failed")
			lastErr = err
		}
	}

	switch {
	case lastErr != nil:
		return nil, fmt.Errorf("all geoip providers failed for %s: %w", ip, lastErr)
	case notFound:
		return nil, fmt.Errorf("%s: %w", ip, ErrNotFound)
	default:
		return nil, ErrNoProvider
	}
}

// Resolve implements detection.GeoResolver. It never fails: any error is
// logged and reported as an unknown location.
func (r *Resolver) Resolve(ctx context.Context, ip netip.Addr) *detection.GeoPoint {
	point, err := r.Lookup(ctx, ip)
	if err != nil {
		if !errors.Is(err, ErrPrivateIP) && !errors.Is(err, ErrNotFound) && ctx.Err() == nil {
			logging.Ctx(ctx).Warn().Err(err).Str("ip", ip.String()).Msg("geolocation unavailable")
		}
		return nil
	}
	return point
}

// CacheLen returns the number of cached addresses.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}
