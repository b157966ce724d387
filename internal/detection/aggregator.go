// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import (
	"cmp"
	"context"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
)

// DefaultMaxObservations bounds one impossible travel pass. Callers load at
// most this many sessions; the aggregator does not truncate.
const DefaultMaxObservations = 500

// alertNamespace seeds the name-based UUIDs used as alert IDs, so the same
// triggering session always yields the same alert ID.
var alertNamespace = uuid.MustParse("6f1c2a4e-8b3d-5e7f-9a0b-1c2d3e4f5a6b")

// AggregatorConfig tunes the heuristics.
type AggregatorConfig struct {
	MaxPlausibleSpeedKmh float64
	MaxObservations      int

	// GeoConcurrency caps parallel geolocation lookups in one pass.
	GeoConcurrency int

	BurstWindow    time.Duration
	BurstThreshold int

	RecurrenceWindow    time.Duration
	RecurrenceThreshold int

	ConcurrencyThreshold int
}

// DefaultAggregatorConfig returns the production thresholds.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		MaxPlausibleSpeedKmh: DefaultMaxPlausibleSpeedKmh,
		MaxObservations:      DefaultMaxObservations,
		GeoConcurrency:       8,
		BurstWindow:          5 * time.Minute,
		BurstThreshold:       5,
		RecurrenceWindow:     time.Hour,
		RecurrenceThreshold:  1,
		ConcurrencyThreshold: 10,
	}
}

func (c AggregatorConfig) withDefaults() AggregatorConfig {
	d := DefaultAggregatorConfig()
	if c.MaxPlausibleSpeedKmh <= 0 {
		c.MaxPlausibleSpeedKmh = d.MaxPlausibleSpeedKmh
	}
	if c.MaxObservations <= 0 {
		c.MaxObservations = d.MaxObservations
	}
	if c.GeoConcurrency <= 0 {
		c.GeoConcurrency = d.GeoConcurrency
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = d.BurstWindow
	}
	if c.BurstThreshold <= 0 {
		c.BurstThreshold = d.BurstThreshold
	}
	if c.RecurrenceWindow <= 0 {
		c.RecurrenceWindow = d.RecurrenceWindow
	}
	if c.RecurrenceThreshold <= 0 {
		c.RecurrenceThreshold = d.RecurrenceThreshold
	}
	if c.ConcurrencyThreshold <= 0 {
		c.ConcurrencyThreshold = d.ConcurrencyThreshold
	}
	return c
}

// Aggregator turns batches of session observations into ranked alerts and
// category level threats. It keeps no state between calls.
type Aggregator struct {
	cfg      AggregatorConfig
	resolver GeoResolver
	analyzer *TravelAnalyzer
}

// NewAggregator creates an Aggregator. Zero config fields take defaults.
func NewAggregator(resolver GeoResolver, cfg AggregatorConfig) *Aggregator {
	cfg = cfg.withDefaults()
	return &Aggregator{
		cfg:      cfg,
		resolver: resolver,
		analyzer: NewTravelAnalyzer(resolver, cfg.MaxPlausibleSpeedKmh),
	}
}

// Config returns the effective configuration.
func (a *Aggregator) Config() AggregatorConfig {
	return a.cfg
}

// travelPair is two consecutive sessions of one user with parsed IPs.
type travelPair struct {
	prev, curr     SessionObservation
	prevIP, currIP netip.Addr
}

// DetectImpossibleTravel compares consecutive sessions of each user and
// returns one alert per impossible transition, fastest first. Pairs with a
// missing, malformed or repeated IP are skipped. Every distinct IP is
// resolved once, concurrently; the only error is ctx cancellation.
//
// Callers must keep len(observations) within MaxObservations.
func (a *Aggregator) DetectImpossibleTravel(ctx context.Context, observations []SessionObservation) ([]ThreatAlert, error) {
	if len(observations) > a.cfg.MaxObservations {
		logging.Ctx(ctx).Warn().
			Int("observations", len(observations)).
			Int("max", a.cfg.MaxObservations).
			Msg("impossible travel input exceeds observation cap")
	}

	pairs := collectPairs(observations)
	if len(pairs) == 0 {
		return []ThreatAlert{}, nil
	}

	ips := distinctIPs(pairs)
	var points map[netip.Addr]*GeoPoint
	if a.resolver != nil {
		var err error
		points, err = resolveAll(ctx, a.resolver, ips, a.cfg.GeoConcurrency)
		if err != nil {
			return nil, fmt.Errorf("resolve session locations: %w", err)
		}
	}

	alerts := make([]ThreatAlert, 0)
	for i := range pairs {
		p := &pairs[i]
		from, to := points[p.prevIP], points[p.currIP]
		analysis := a.analyzer.Evaluate(from, to, p.prev.CreatedAt, p.curr.CreatedAt)
		if !analysis.IsImpossible {
			continue
		}
		alerts = append(alerts, newThreatAlert(p, from, to, analysis))
	}

	sortAlerts(alerts)

	logging.Ctx(ctx).Debug().
		Int("observations", len(observations)).
		Int("pairs", len(pairs)).
		Int("distinct_ips", len(ips)).
		Int("alerts", len(alerts)).
		Msg("impossible travel pass complete")

	return alerts, nil
}

// collectPairs groups by user, orders each group by creation time (stable
// on ties) and keeps adjacent pairs whose IPs are valid and differ.
func collectPairs(observations []SessionObservation) []travelPair {
	groups := make(map[string][]SessionObservation)
	var order []string
	for i := range observations {
		uid := observations[i].UserID
		if _, ok := groups[uid]; !ok {
			order = append(order, uid)
		}
		groups[uid] = append(groups[uid], observations[i])
	}

	var pairs []travelPair
	for _, uid := range order {
		sessions := groups[uid]
		slices.SortStableFunc(sessions, func(a, b SessionObservation) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})

		for i := 1; i < len(sessions); i++ {
			prevIP, ok := ParseIP(sessions[i-1].IPAddress)
			if !ok {
				continue
			}
			currIP, ok := ParseIP(sessions[i].IPAddress)
			if !ok || prevIP == currIP {
				continue
			}
			pairs = append(pairs, travelPair{
				prev:   sessions[i-1],
				curr:   sessions[i],
				prevIP: prevIP,
				currIP: currIP,
			})
		}
	}
	return pairs
}

func distinctIPs(pairs []travelPair) []netip.Addr {
	seen := make(map[netip.Addr]struct{}, len(pairs)*2)
	ips := make([]netip.Addr, 0, len(pairs)*2)
	for i := range pairs {
		for _, ip := range [2]netip.Addr{pairs[i].prevIP, pairs[i].currIP} {
			if _, ok := seen[ip]; ok {
				continue
			}
			seen[ip] = struct{}{}
			ips = append(ips, ip)
		}
	}
	return ips
}

// AlertID returns the deterministic alert ID for a triggering session.
func AlertID(sessionID string) string {
	return uuid.NewSHA1(alertNamespace, []byte(sessionID)).String()
}

func newThreatAlert(p *travelPair, from, to *GeoPoint, analysis TravelAnalysis) ThreatAlert {
	return ThreatAlert{
		ID:               AlertID(p.curr.SessionID),
		SessionID:        p.curr.SessionID,
		UserID:           p.curr.UserID,
		UserName:         p.curr.UserName,
		UserEmail:        p.curr.UserEmail,
		PreviousLocation: newLocation(p.prevIP.String(), from),
		CurrentLocation:  newLocation(p.currIP.String(), to),
		DistanceKm:       roundTo2Decimals(analysis.DistanceKm),
		DistanceMi:       roundTo2Decimals(analysis.DistanceKm * KmToMiles),
		TimeDiffHours:    roundTo2Decimals(analysis.TimeDiffHours),
		RequiredSpeedKmh: roundTo2Decimals(analysis.RequiredSpeedKmh),
		Timestamp:        p.curr.CreatedAt,
		Status:           AlertStatusPending,
	}
}

// sortAlerts orders by required speed, then timestamp, both descending.
func sortAlerts(alerts []ThreatAlert) {
	slices.SortStableFunc(alerts, func(a, b ThreatAlert) int {
		if c := cmp.Compare(b.RequiredSpeedKmh, a.RequiredSpeedKmh); c != 0 {
			return c
		}
		return b.Timestamp.Compare(a.Timestamp)
	})
}

// DetectThreatCategories runs the category heuristics against one snapshot
// of sessions. Each heuristic contributes at most one Threat; the result is
// ordered burst, location anomaly, concurrency.
func (a *Aggregator) DetectThreatCategories(observations []SessionObservation, now time.Time) []Threat {
	threats := make([]Threat, 0, 3)
	for _, detect := range []func([]SessionObservation, time.Time) *Threat{
		a.detectSuspiciousBurst,
		a.detectLocationAnomaly,
		a.detectExcessiveConcurrency,
	} {
		if t := detect(observations, now); t != nil {
			threats = append(threats, *t)
		}
	}
	return threats
}

// within reports whether t falls in (now-window, now].
func within(t, now time.Time, window time.Duration) bool {
	return t.After(now.Add(-window)) && !t.After(now)
}

// exceeding counts keys whose tally is above threshold.
func exceeding(counts map[string]int, threshold int) int {
	n := 0
	for _, c := range counts {
		if c > threshold {
			n++
		}
	}
	return n
}

func (a *Aggregator) detectSuspiciousBurst(observations []SessionObservation, now time.Time) *Threat {
	perIP := make(map[string]int)
	for i := range observations {
		o := &observations[i]
		if !o.IsSuspicious || !within(o.CreatedAt, now, a.cfg.BurstWindow) {
			continue
		}
		key := o.IPAddress
		if ip, ok := ParseIP(o.IPAddress); ok {
			key = ip.String()
		}
		if key == "" {
			continue
		}
		perIP[key]++
	}

	flagged := exceeding(perIP, a.cfg.BurstThreshold)
	if flagged == 0 {
		return nil
	}
	return &Threat{
		Type:     ThreatTypeSuspiciousBurst,
		Severity: SeverityHigh,
		Description: fmt.Sprintf("%d IP address(es) opened more than %d suspicious sessions in the last %s",
			flagged, a.cfg.BurstThreshold, a.cfg.BurstWindow),
		AffectedUsers: flagged,
		DetectedAt:    now,
		Status:        ThreatStatusActive,
	}
}

func (a *Aggregator) detectLocationAnomaly(observations []SessionObservation, now time.Time) *Threat {
	perUser := make(map[string]int)
	for i := range observations {
		o := &observations[i]
		if !o.IsSuspicious || !within(o.CreatedAt, now, a.cfg.RecurrenceWindow) {
			continue
		}
		perUser[o.UserID]++
	}

	users := exceeding(perUser, a.cfg.RecurrenceThreshold)
	if users == 0 {
		return nil
	}
	return &Threat{
		Type:     ThreatTypeLocationAnomaly,
		Severity: SeverityCritical,
		Description: fmt.Sprintf("%d user(s) had repeated suspicious sign-ins in the last %s",
			users, a.cfg.RecurrenceWindow),
		AffectedUsers: users,
		DetectedAt:    now,
		Status:        ThreatStatusActive,
	}
}

func (a *Aggregator) detectExcessiveConcurrency(observations []SessionObservation, now time.Time) *Threat {
	perUser := make(map[string]int)
	for i := range observations {
		if observations[i].Active(now) {
			perUser[observations[i].UserID]++
		}
	}

	users := exceeding(perUser, a.cfg.ConcurrencyThreshold)
	if users == 0 {
		return nil
	}
	return &Threat{
		Type:     ThreatTypeExcessiveConcurrency,
		Severity: SeverityMedium,
		Description: fmt.Sprintf("%d user(s) hold more than %d concurrent active sessions",
			users, a.cfg.ConcurrencyThreshold),
		AffectedUsers: users,
		DetectedAt:    now,
		Status:        ThreatStatusActive,
	}
}
