// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

// Package geoip resolves IP addresses to approximate locations.
//
// A Resolver tries its providers in order (static ranges, MaxMind GeoLite2
// web service, ip-api.com), each behind its own circuit breaker, and keeps
// results in an expiring LRU cache. Private and reserved addresses are
// answered only from static ranges and never leave the process. Resolver implements detection.GeoResolver:
// every failure there degrades to an unknown location.
package geoip

import (
	"context"
	"errors"
	"net/netip"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
)

var (
	// ErrNotFound means the provider answered but has no location for the
	// address. It does not count against a provider's circuit breaker.
	ErrNotFound = errors.New("geoip: no location for address")

	// ErrRateLimited means the provider's local request budget is spent.
	ErrRateLimited = errors.New("geoip: provider rate limit exceeded")

	// ErrPrivateIP is returned for private, loopback and other
	// non-routable addresses that no static range covers.
	ErrPrivateIP = errors.New("geoip: address is not publicly routable")

	// ErrNoProvider is returned when no provider is available.
	ErrNoProvider = errors.New("geoip: no provider available")
)

// Provider looks up a single address.
type Provider interface {
	// Lookup returns the location of ip, or an error. A provider that has
	// no data for ip returns an error wrapping ErrNotFound.
	Lookup(ctx context.Context, ip netip.Addr) (*detection.GeoPoint, error)

	// Name identifies the provider in logs and metrics.
	Name() string

	// IsAvailable reports whether the provider is configured.
	IsAvailable() bool
}

var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// IsPrivateIP reports whether ip cannot be meaningfully geolocated:
// RFC 1918 and unique local ranges, loopback, link-local, multicast,
// unspecified and carrier-grade NAT addresses.
func IsPrivateIP(ip netip.Addr) bool {
	ip = ip.Unmap()
	return !ip.IsValid() ||
		ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		cgnat.Contains(ip)
}
