// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package geoip

import (
	"fmt"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/config"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
)

// NewFromConfig builds a Resolver with providers in the configured order.
// Providers that cannot serve (maxmind without credentials, static without
// ranges) are skipped with a log line rather than failing startup.
func NewFromConfig(cfg config.GeoIPConfig) (*Resolver, error) {
	providers := make([]Provider, 0, len(cfg.Providers))

	for _, name := range cfg.Providers {
		switch name {
		case "static":
			if len(cfg.Static) == 0 {
				logging.Debug().Msg("static geoip provider has no ranges, skipping")
				continue
			}
			ranges := make(map[string]detection.GeoPoint, len(cfg.Static))
			for _, r := range cfg.Static {
				ranges[r.CIDR] = detection.GeoPoint{
					Latitude:  r.Latitude,
					Longitude: r.Longitude,
					City:      r.City,
					Country:   r.Country,
				}
			}
			p, err := NewStaticProvider(ranges)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)

		case "maxmind":
			p := NewMaxMindProvider(cfg.MaxMindAccountID, cfg.MaxMindLicenseKey, cfg.MaxMindURL, cfg.RequestTimeout)
			if !p.IsAvailable() {
				logging.Info().Msg("MaxMind credentials not set, skipping maxmind geoip provider")
				continue
			}
			providers = append(providers, p)

		case "ipapi":
			providers = append(providers, NewIPAPIProvider(cfg.IPAPIURL, cfg.IPAPIRequestsPerMinute, cfg.RequestTimeout))

		default:
			return nil, fmt.Errorf("unknown geoip provider %q", name)
		}
	}

	if len(providers) == 0 {
		logging.Warn().Msg("no geoip providers configured, every location will be unknown")
	}

	r := NewResolver(ResolverOptions{
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
		Breaker: BreakerSettings{
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
		},
	}, providers...)

	logging.Info().Strs("providers", r.ProviderNames()).Msg("geoip resolver ready")
	return r, nil
}
