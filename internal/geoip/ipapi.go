// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package geoip

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
)

const (
	// DefaultIPAPIURL is the free ip-api.com JSON endpoint.
	DefaultIPAPIURL = "http://ip-api.com/json"

	// DefaultIPAPIRequestsPerMinute is the free tier quota.
	DefaultIPAPIRequestsPerMinute = 45
)

// IPAPIProvider queries ip-api.com. It needs no key but is limited to 45
// requests per minute on the free tier; requests over budget fail fast
// with ErrRateLimited instead of queueing.
type IPAPIProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// NewIPAPIProvider creates a provider. Zero arguments select the defaults.
func NewIPAPIProvider(baseURL string, requestsPerMinute int, timeout time.Duration) *IPAPIProvider {
	if baseURL == "" {
		baseURL = DefaultIPAPIURL
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultIPAPIRequestsPerMinute
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IPAPIProvider{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		baseURL: baseURL,
	}
}

func (p *IPAPIProvider) Name() string {
	return "ip-api"
}

// IsAvailable always returns true; ip-api.com needs no credentials.
func (p *IPAPIProvider) IsAvailable() bool {
	return true
}

func (p *IPAPIProvider) Lookup(ctx context.Context, ip netip.Addr) (*detection.GeoPoint, error) {
	if !p.limiter.Allow() {
		return nil, ErrRateLimited
	}

	url := fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,city,lat,lon", p.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api.com returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}

	if result.Status != "success" {
		// "private range", "reserved range" and "invalid query" all mean
		// there is nothing to locate.
		return nil, fmt.Errorf("ip-api.com: %s: %w", result.Message, ErrNotFound)
	}

	country := result.CountryCode
	if country == "" {
		country = result.Country
	}
	return &detection.GeoPoint{
		Latitude:  result.Lat,
		Longitude: result.Lon,
		City:      result.City,
		Country:   country,
	}, nil
}
