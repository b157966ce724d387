// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package geoip

import (
	"context"
	"fmt"
	"net/netip"
	"slices"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
)

// StaticProvider answers from a fixed table of network ranges, typically
// office or VPN egress ranges whose location is known.
type StaticProvider struct {
	entries []staticEntry
}

type staticEntry struct {
	prefix netip.Prefix
	point  detection.GeoPoint
}

// NewStaticProvider builds a provider from CIDR keyed locations. The most
// specific matching prefix wins.
func NewStaticProvider(ranges map[string]detection.GeoPoint) (*StaticProvider, error) {
	entries := make([]staticEntry, 0, len(ranges))
	for cidr, point := range ranges {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			addr, addrErr := netip.ParseAddr(cidr)
			if addrErr != nil {
				return nil, fmt.Errorf("invalid static range %q: %w", cidr, err)
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		entries = append(entries, staticEntry{prefix: prefix.Masked(), point: point})
	}
	slices.SortFunc(entries, func(a, b staticEntry) int {
		return b.prefix.Bits() - a.prefix.Bits()
	})
	return &StaticProvider{entries: entries}, nil
}

func (p *StaticProvider) Name() string {
	return "static"
}

func (p *StaticProvider) IsAvailable() bool {
	return len(p.entries) > 0
}

func (p *StaticProvider) Lookup(_ context.Context, ip netip.Addr) (*detection.GeoPoint, error) {
	ip = ip.Unmap()
	for i := range p.entries {
		if p.entries[i].prefix.Contains(ip) {
			point := p.entries[i].point
			return &point, nil
		}
	}
	return nil, ErrNotFound
}
