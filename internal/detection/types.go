// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CoordinateEpsilon is the threshold for treating a coordinate as zero.
// Providers report (0, 0) when they have no fix, so that point counts as
// unresolved.
const CoordinateEpsilon = 1e-7

// Labels used when a location could not be resolved.
const (
	UnknownCity    = "Unknown"
	UnknownCountry = "??"
)

// IsUnknownLocation reports whether the coordinates are the (0, 0) sentinel.
func IsUnknownLocation(lat, lon float64) bool {
	return math.Abs(lat) < CoordinateEpsilon && math.Abs(lon) < CoordinateEpsilon
}

// Severity ranks a Threat.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ThreatType identifies the heuristic that produced a Threat.
type ThreatType string

const (
	ThreatTypeSuspiciousBurst      ThreatType = "suspicious_session_burst"
	ThreatTypeLocationAnomaly      ThreatType = "location_anomaly"
	ThreatTypeExcessiveConcurrency ThreatType = "excessive_concurrency"
)

// ThreatStatusActive is the status of every freshly computed Threat.
const ThreatStatusActive = "active"

// AlertStatus is the moderation state of a ThreatAlert. Only the action
// handling path changes it; the analytics always start from pending.
type AlertStatus string

const (
	AlertStatusPending   AlertStatus = "pending"
	AlertStatusDismissed AlertStatus = "dismissed"
	AlertStatusBlocked   AlertStatus = "blocked"
)

// Valid reports whether s is a known status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusPending, AlertStatusDismissed, AlertStatusBlocked:
		return true
	}
	return false
}

// ParseAlertStatus converts user input into an AlertStatus.
func ParseAlertStatus(s string) (AlertStatus, error) {
	status := AlertStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// SessionObservation is one authenticated session as seen at creation time,
// denormalized with its owner's display fields.
type SessionObservation struct {
	SessionID string
	UserID    string
	UserName  string
	UserEmail string

	// IPAddress may be empty or malformed; it is validated before use.
	IPAddress string
	UserAgent string
	CreatedAt time.Time

	// ExpiresAt is zero for sessions without an expiry.
	ExpiresAt time.Time
	Revoked   bool

	// IsSuspicious is set by the authentication layer.
	IsSuspicious bool

	// TrustLevel is the device recognition score owned by session storage.
	TrustLevel int
}

// Active reports whether the session is live at now.
func (o *SessionObservation) Active(now time.Time) bool {
	if o.Revoked {
		return false
	}
	return o.ExpiresAt.IsZero() || now.Before(o.ExpiresAt)
}

// GeoPoint is a resolved location for an IP address.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
}

// usable reports whether p carries coordinates that distance math can use.
func (p *GeoPoint) usable() bool {
	if p == nil {
		return false
	}
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	if math.Abs(p.Latitude) > 90 || math.Abs(p.Longitude) > 180 {
		return false
	}
	return !IsUnknownLocation(p.Latitude, p.Longitude)
}

// Location is the display triple attached to an alert.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
	IP      string `json:"ip"`
}

// newLocation labels ip with p, falling back to the unknown labels.
func newLocation(ip string, p *GeoPoint) Location {
	loc := Location{City: UnknownCity, Country: UnknownCountry, IP: ip}
	if p == nil {
		return loc
	}
	if p.City != "" {
		loc.City = p.City
	}
	if p.Country != "" {
		loc.Country = p.Country
	}
	return loc
}

// TravelAnalysis is the outcome of comparing two sessions of one user.
type TravelAnalysis struct {
	DistanceKm       float64 `json:"distanceKm"`
	TimeDiffHours    float64 `json:"timeDiffHours"`
	RequiredSpeedKmh float64 `json:"requiredSpeedKmh"`

	// Resolved is false when either side had no usable coordinates. The
	// distance and speed are zero in that case.
	Resolved     bool `json:"resolved"`
	IsImpossible bool `json:"isImpossible"`
}

// ThreatAlert is a single impossible travel finding.
type ThreatAlert struct {
	ID               string      `json:"id"`
	SessionID        string      `json:"sessionId"`
	UserID           string      `json:"userId"`
	UserName         string      `json:"userName"`
	UserEmail        string      `json:"userEmail"`
	PreviousLocation Location    `json:"previousLocation"`
	CurrentLocation  Location    `json:"currentLocation"`
	DistanceKm       float64     `json:"distanceKm"`
	DistanceMi       float64     `json:"distanceMi"`
	TimeDiffHours    float64     `json:"timeDiffHours"`
	RequiredSpeedKmh float64     `json:"requiredSpeedKmh"`
	Timestamp        time.Time   `json:"timestamp"`
	Status           AlertStatus `json:"status"`
}

// Threat is a category level finding over many sessions.
type Threat struct {
	Type          ThreatType `json:"type"`
	Severity      Severity   `json:"severity"`
	Description   string     `json:"description"`
	AffectedUsers int        `json:"affectedUsers"`
	DetectedAt    time.Time  `json:"detectedAt"`
	Status        string     `json:"status"`
}

// ThreatSummary counts threats by severity.
type ThreatSummary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Summarize counts threats by severity.
func Summarize(threats []Threat) ThreatSummary {
	s := ThreatSummary{Total: len(threats)}
	for i := range threats {
		switch threats[i].Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
	}
	return s
}

func roundTo2Decimals(v float64) float64 {
	return math.Round(v*100) / 100
}
