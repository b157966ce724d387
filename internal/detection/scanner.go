// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/metrics"
)

const (
	scanKindImpossibleTravel = "impossible_travel"
	scanKindThreats          = "threats"
	scanKindRisk             = "risk"
)

// ScannerConfig controls how much history a scan reads and how often the
// background loop runs.
type ScannerConfig struct {
	// LookbackWindow bounds the sessions considered for impossible travel.
	LookbackWindow time.Duration

	// ScanInterval enables the background loop when positive.
	ScanInterval time.Duration

	// ScanTimeout bounds one background pass.
	ScanTimeout time.Duration
}

// DefaultScannerConfig returns the default configuration.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		LookbackWindow: 24 * time.Hour,
		ScanInterval:   time.Minute,
		ScanTimeout:    30 * time.Second,
	}
}

// Scanner loads sessions from storage and runs the Aggregator over them.
type Scanner struct {
	agg      *Aggregator
	sessions SessionSource
	cfg      ScannerConfig

	mu        sync.RWMutex
	statuses  AlertStatusStore
	publisher EventPublisher

	// raised holds the threat keys reported by the previous pass.
	raisedMu sync.Mutex
	raised   map[string]struct{}

	now func() time.Time
}

// NewScanner creates a Scanner. The status store and publisher are
// optional and attached with SetStatusStore and SetPublisher.
func NewScanner(agg *Aggregator, sessions SessionSource, cfg ScannerConfig) *Scanner {
	if cfg.LookbackWindow <= 0 {
		cfg.LookbackWindow = DefaultScannerConfig().LookbackWindow
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = DefaultScannerConfig().ScanTimeout
	}
	return &Scanner{
		agg:      agg,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		raised:   make(map[string]struct{}),
	}
}

// SetStatusStore attaches the alert moderation store.
func (s *Scanner) SetStatusStore(store AlertStatusStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = store
}

// SetPublisher attaches the event publisher.
func (s *Scanner) SetPublisher(p EventPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

func (s *Scanner) collaborators() (AlertStatusStore, EventPublisher) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses, s.publisher
}

// ImpossibleTravel runs one impossible travel pass over the most recent
// sessions in the lookback window.
func (s *Scanner) ImpossibleTravel(ctx context.Context) (alerts []ThreatAlert, err error) {
	start := time.Now()
	defer func() { metrics.RecordSecurityScan(scanKindImpossibleTravel, time.Since(start), err) }()

	if logging.ScanIDFromContext(ctx) == "" {
		ctx = logging.ContextWithScanID(ctx, logging.GenerateScanID())
	}

	now := s.now()
	observations, err := s.sessions.RecentSessions(ctx, now.Add(-s.cfg.LookbackWindow), s.agg.Config().MaxObservations)
	if err != nil {
		return nil, fmt.Errorf("load recent sessions: %w", err)
	}
	metrics.SessionsAnalyzed.Add(float64(len(observations)))

	alerts, err = s.agg.DetectImpossibleTravel(ctx, observations)
	if err != nil {
		return nil, err
	}

	s.applyStatuses(ctx, alerts)
	metrics.ImpossibleTravelAlerts.Set(float64(len(alerts)))
	return alerts, nil
}

// applyStatuses overlays stored moderation status, refreshes every alert
// in the store and announces alerts that have never been seen before.
// Store failures leave alerts pending.
func (s *Scanner) applyStatuses(ctx context.Context, alerts []ThreatAlert) {
	store, publisher := s.collaborators()
	if store == nil || len(alerts) == 0 {
		return
	}

	ids := make([]string, len(alerts))
	for i := range alerts {
		ids[i] = alerts[i].ID
	}

	known, err := store.Statuses(ctx, ids)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to load alert statuses")
		return
	}

	var fresh []ThreatAlert
	for i := range alerts {
		if status, ok := known[alerts[i].ID]; ok {
			alerts[i].Status = status
			continue
		}
		fresh = append(fresh, alerts[i])
	}

	// Known alerts are tracked too so their last-seen time and retention
	// follow the alert for as long as it keeps being detected.
	if err := store.Track(ctx, ids); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int("alerts", len(ids)).Msg("failed to track alerts")
		return
	}
	if len(fresh) == 0 {
		return
	}
	metrics.ImpossibleTravelNewAlerts.Add(float64(len(fresh)))

	if publisher != nil {
		if err := publisher.PublishAlerts(ctx, fresh); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("failed to publish new alerts")
		}
	}
}

// Threats runs the category heuristics over suspicious sessions in the
// widest heuristic window plus all live sessions.
func (s *Scanner) Threats(ctx context.Context) (threats []Threat, err error) {
	start := time.Now()
	defer func() { metrics.RecordSecurityScan(scanKindThreats, time.Since(start), err) }()

	now := s.now()
	cfg := s.agg.Config()
	window := max(cfg.BurstWindow, cfg.RecurrenceWindow)

	suspicious, err := s.sessions.SuspiciousSessions(ctx, now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("load suspicious sessions: %w", err)
	}
	active, err := s.sessions.ActiveSessions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load active sessions: %w", err)
	}

	threats = s.agg.DetectThreatCategories(mergeSessions(suspicious, active), now)

	raised := s.newlyRaised(threats)
	for i := range raised {
		metrics.ThreatsDetected.WithLabelValues(string(raised[i].Type), string(raised[i].Severity)).Inc()
	}
	if _, publisher := s.collaborators(); publisher != nil && len(raised) > 0 {
		if err := publisher.PublishThreats(ctx, raised); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("failed to publish threats")
		}
	}
	return threats, nil
}

// newlyRaised returns the threats that were not reported by the previous
// pass and remembers the current set. A threat is identified by its type
// and affected count, so a condition that grows or shrinks is reported
// again and one that clears and returns is reported anew.
func (s *Scanner) newlyRaised(threats []Threat) []Threat {
	s.raisedMu.Lock()
	defer s.raisedMu.Unlock()

	current := make(map[string]struct{}, len(threats))
	var raised []Threat
	for i := range threats {
		key := threatKey(threats[i])
		current[key] = struct{}{}
		if _, ok := s.raised[key]; !ok {
			raised = append(raised, threats[i])
		}
	}
	s.raised = current
	return raised
}

func threatKey(t Threat) string {
	return fmt.Sprintf("%s/%d", t.Type, t.AffectedUsers)
}

// mergeSessions concatenates the slices, dropping repeated session IDs so
// a suspicious live session is counted once.
func mergeSessions(sets ...[]SessionObservation) []SessionObservation {
	seen := make(map[string]struct{})
	var out []SessionObservation
	for _, set := range sets {
		for i := range set {
			id := set[i].SessionID
			if id != "" {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
			}
			out = append(out, set[i])
		}
	}
	return out
}

// RiskScores scores every user holding a live session.
func (s *Scanner) RiskScores(ctx context.Context) (risks []UserRisk, err error) {
	start := time.Now()
	defer func() { metrics.RecordSecurityScan(scanKindRisk, time.Since(start), err) }()

	now := s.now()
	active, err := s.sessions.ActiveSessions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load active sessions: %w", err)
	}
	return ScoreUsers(active, now), nil
}

// SetAlertStatus records a moderation decision for an alert.
func (s *Scanner) SetAlertStatus(ctx context.Context, id string, status AlertStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	store, _ := s.collaborators()
	if store == nil {
		return errors.New("alert status store not configured")
	}
	if err := store.SetStatus(ctx, id, status); err != nil {
		return err
	}
	metrics.AlertStatusChanges.WithLabelValues(string(status)).Inc()
	logging.Ctx(ctx).Info().Str("alert_id", id).Str("status", string(status)).Msg("alert status changed")
	return nil
}

// RunWithContext runs periodic scans until ctx is cancelled so new alerts
// are tracked and published without an API caller. It is meant to be run
// under suture supervision and returns ctx.Err() on shutdown.
func (s *Scanner) RunWithContext(ctx context.Context) error {
	if s.cfg.ScanInterval <= 0 {
		logging.Info().Msg("background security scan disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	logging.Info().Dur("interval", s.cfg.ScanInterval).Msg("background security scan started")
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.scanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("background security scan stopped")
			return ctx.Err()
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Scanner) scanOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.ScanTimeout)
	defer cancel()
	ctx = logging.ContextWithScanID(ctx, logging.GenerateScanID())

	alerts, err := s.ImpossibleTravel(ctx)
	if err != nil {
		if parent.Err() == nil {
			logging.Ctx(ctx).Error().Err(err).Msg("impossible travel scan failed")
		}
		return
	}
	threats, err := s.Threats(ctx)
	if err != nil {
		if parent.Err() == nil {
			logging.Ctx(ctx).Error().Err(err).Msg("threat scan failed")
		}
		return
	}
	logging.Ctx(ctx).Debug().Int("alerts", len(alerts)).Int("threats", len(threats)).Msg("background scan complete")
}
