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

	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
)

// DefaultMaxMindURL is the GeoLite2 City web service endpoint.
const DefaultMaxMindURL = "https://geolite.info/geoip/v2.1/city"

// MaxMindProvider queries the MaxMind GeoLite2 web service. It needs a free
// MaxMind account ID and license key.
type MaxMindProvider struct {
	client     *http.Client
	accountID  string
	licenseKey string
	baseURL    string
}

type maxMindResponse struct {
	City struct {
		Names map[string]string `json:"names"`
	} `json:"city"`
	Country struct {
		ISOCode string            `json:"iso_code"`
		Names   map[string]string `json:"names"`
	} `json:"country"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

type maxMindErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// NewMaxMindProvider creates a provider. An empty baseURL selects
// DefaultMaxMindURL.
func NewMaxMindProvider(accountID, licenseKey, baseURL string, timeout time.Duration) *MaxMindProvider {
	if baseURL == "" {
		baseURL = DefaultMaxMindURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MaxMindProvider{
		client:     &http.Client{Timeout: timeout},
		accountID:  accountID,
		licenseKey: licenseKey,
		baseURL:    baseURL,
	}
}

func (p *MaxMindProvider) Name() string {
	return "maxmind"
}

// IsAvailable returns true when credentials are configured.
func (p *MaxMindProvider) IsAvailable() bool {
	return p.accountID != "" && p.licenseKey != ""
}

func (p *MaxMindProvider) Lookup(ctx context.Context, ip netip.Addr) (*detection.GeoPoint, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("maxmind credentials not configured: %w", ErrNoProvider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+ip.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(p.accountID, p.licenseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query maxmind: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, maxMindError(resp)
	}

	var result maxMindResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode maxmind response: %w", err)
	}

	point := &detection.GeoPoint{
		Latitude:  result.Location.Latitude,
		Longitude: result.Location.Longitude,
		City:      result.City.Names["en"],
		Country:   result.Country.ISOCode,
	}
	if point.Country == "" {
		point.Country = result.Country.Names["en"]
	}
	if detection.IsUnknownLocation(point.Latitude, point.Longitude) {
		return nil, fmt.Errorf("maxmind returned no coordinates for %s: %w", ip, ErrNotFound)
	}
	return point, nil
}

// maxMindError maps an error response. MaxMind answers 404 with
// IP_ADDRESS_NOT_FOUND or IP_ADDRESS_RESERVED for addresses it cannot
// locate.
func maxMindError(resp *http.Response) error {
	var errResp maxMindErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)

	switch errResp.Code {
	case "IP_ADDRESS_NOT_FOUND", "IP_ADDRESS_RESERVED":
		return fmt.Errorf("maxmind %s: %w", errResp.Code, ErrNotFound)
	}
	if errResp.Error != "" {
		return fmt.Errorf("maxmind error (%s): %s", errResp.Code, errResp.Error)
	}
	return fmt.Errorf("maxmind returned status %d", resp.StatusCode)
}
