// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestDetectImpossibleTravel_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sessions   []SessionObservation
		wantAlerts int
	}{
		{
			name: "new york then tokyo ten minutes later",
			sessions: []SessionObservation{
				obs("a", "u1", "1.2.3.4", baseTime),
				obs("b", "u1", "9.8.7.6", baseTime.Add(10*time.Minute)),
			},
			wantAlerts: 1,
		},
		{
			name: "new york then tokyo twenty hours later",
			sessions: []SessionObservation{
				obs("a", "u1", "1.2.3.4", baseTime),
				obs("b", "u1", "9.8.7.6", baseTime.Add(20*time.Hour)),
			},
			wantAlerts: 0,
		},
		{
			name: "same ip never alerts",
			sessions: []SessionObservation{
				obs("a", "u1", "1.2.3.4", baseTime),
				obs("b", "u1", "1.2.3.4", baseTime.Add(time.Second)),
			},
			wantAlerts: 0,
		},
		{
			name: "malformed ip is skipped",
			sessions: []SessionObservation{
				obs("a", "u1", "1.2.3.4", baseTime),
				obs("b", "u1", "not-an-ip", baseTime.Add(time.Minute)),
				obs("c", "u1", "", baseTime.Add(2*time.Minute)),
			},
			wantAlerts: 0,
		},
		{
			name: "different users are never paired",
			sessions: []SessionObservation{
				obs("a", "u1", "1.2.3.4", baseTime),
				obs("b", "u2", "9.8.7.6", baseTime.Add(time.Minute)),
			},
			wantAlerts: 0,
		},
		{
			name: "unresolved location is not impossible",
			sessions: []SessionObservation{
				obs("a", "u1", "1.2.3.4", baseTime),
				obs("b", "u1", "203.0.113.77", baseTime.Add(time.Minute)),
			},
			wantAlerts: 0,
		},
		{
			name: "input order does not matter",
			sessions: []SessionObservation{
				obs("b", "u1", "9.8.7.6", baseTime.Add(10*time.Minute)),
				obs("a", "u1", "1.2.3.4", baseTime),
			},
			wantAlerts: 1,
		},
		{
			name:       "empty input",
			sessions:   nil,
			wantAlerts: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			agg := NewAggregator(cityResolver(), AggregatorConfig{})
			alerts, err := agg.DetectImpossibleTravel(context.Background(), tt.sessions)
			if err != nil {
				t.Fatalf("DetectImpossibleTravel: %v", err)
			}
			if alerts == nil {
				t.Fatal("expected non-nil slice")
			}
			if len(alerts) != tt.wantAlerts {
				t.Errorf("got %d alerts, want %d: %+v", len(alerts), tt.wantAlerts, alerts)
			}
		})
	}
}

func TestDetectImpossibleTravel_AlertFields(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(cityResolver(), AggregatorConfig{})
	sessions := []SessionObservation{
		obs("a", "u1", "1.2.3.4", baseTime),
		obs("b", "u1", "9.8.7.6", baseTime.Add(10*time.Minute)),
	}

	alerts, err := agg.DetectImpossibleTravel(context.Background(), sessions)
	if err != nil {
		t.Fatalf("DetectImpossibleTravel: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]

	if a.ID != AlertID("b") {
		t.Errorf("ID = %s, want id derived from triggering session", a.ID)
	}
	if a.SessionID != "b" || a.UserID != "u1" || a.UserName != "user-u1" || a.UserEmail != "u1@example.com" {
		t.Errorf("unexpected identity fields: %+v", a)
	}
	if a.PreviousLocation != (Location{City: "New York", Country: "US", IP: "1.2.3.4"}) {
		t.Errorf("PreviousLocation = %+v", a.PreviousLocation)
	}
	if a.CurrentLocation != (Location{City: "Tokyo", Country: "JP", IP: "9.8.7.6"}) {
		t.Errorf("CurrentLocation = %+v", a.CurrentLocation)
	}
	if a.RequiredSpeedKmh <= DefaultMaxPlausibleSpeedKmh {
		t.Errorf("RequiredSpeedKmh = %v, want well above threshold", a.RequiredSpeedKmh)
	}
	if math.Abs(a.DistanceMi-a.DistanceKm*KmToMiles) > 0.01 {
		t.Errorf("DistanceMi = %v, want %v", a.DistanceMi, a.DistanceKm*KmToMiles)
	}
	if !a.Timestamp.Equal(baseTime.Add(10 * time.Minute)) {
		t.Errorf("Timestamp = %v, want later session time", a.Timestamp)
	}
	if a.Status != AlertStatusPending {
		t.Errorf("Status = %s, want pending", a.Status)
	}

	again, err := agg.DetectImpossibleTravel(context.Background(), sessions)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if again[0].ID != a.ID {
		t.Errorf("alert ID not stable across passes: %s vs %s", again[0].ID, a.ID)
	}
}

func TestDetectImpossibleTravel_ResolvesEachAddressOnce(t *testing.T) {
	t.Parallel()

	r := cityResolver()
	agg := NewAggregator(r, AggregatorConfig{GeoConcurrency: 4})

	// u1 bounces between two addresses; u2 shares one of them.
	sessions := []SessionObservation{
		obs("a1", "u1", "1.2.3.4", baseTime),
		obs("a2", "u1", "81.2.69.160", baseTime.Add(time.Hour)),
		obs("a3", "u1", "1.2.3.4", baseTime.Add(2*time.Hour)),
		obs("a4", "u1", "81.2.69.160", baseTime.Add(3*time.Hour)),
		obs("b1", "u2", "81.2.69.160", baseTime),
		obs("b2", "u2", "9.8.7.6", baseTime.Add(5*time.Minute)),
	}

	alerts, err := agg.DetectImpossibleTravel(context.Background(), sessions)
	if err != nil {
		t.Fatalf("DetectImpossibleTravel: %v", err)
	}

	for _, ip := range []string{"1.2.3.4", "81.2.69.160", "9.8.7.6"} {
		if got := r.callsFor(ip); got != 1 {
			t.Errorf("%s resolved %d times, want 1", ip, got)
		}
	}
	// Three hops of u1 (~5570 km/h) plus u2 London->Tokyo in 5 minutes.
	if len(alerts) != 4 {
		t.Errorf("got %d alerts, want 4", len(alerts))
	}
	if alerts[0].UserID != "u2" {
		t.Errorf("fastest alert should be u2's, got %s", alerts[0].UserID)
	}
}

func TestDetectImpossibleTravel_StableOnEqualTimestamps(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(cityResolver(), AggregatorConfig{})
	// b and c share a timestamp; input order decides that b precedes c.
	sessions := []SessionObservation{
		obs("a", "u1", "1.2.3.4", baseTime),
		obs("b", "u1", "1.2.3.4", baseTime.Add(time.Hour)),
		obs("c", "u1", "9.8.7.6", baseTime.Add(time.Hour)),
	}

	alerts, err := agg.DetectImpossibleTravel(context.Background(), sessions)
	if err != nil {
		t.Fatalf("DetectImpossibleTravel: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].SessionID != "c" {
		t.Errorf("alert triggered by %s, want c", alerts[0].SessionID)
	}
	if alerts[0].TimeDiffHours != roundTo2Decimals(minTimeDiffHours) {
		t.Errorf("TimeDiffHours = %v, want epsilon floor", alerts[0].TimeDiffHours)
	}
}

func TestDetectImpossibleTravel_Cancelled(t *testing.T) {
	t.Parallel()

	r := cityResolver()
	r.block = true
	agg := NewAggregator(r, AggregatorConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := agg.DetectImpossibleTravel(ctx, []SessionObservation{
		obs("a", "u1", "1.2.3.4", baseTime),
		obs("b", "u1", "9.8.7.6", baseTime.Add(time.Minute)),
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestDetectImpossibleTravel_NoResolver(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(nil, AggregatorConfig{})
	alerts, err := agg.DetectImpossibleTravel(context.Background(), []SessionObservation{
		obs("a", "u1", "1.2.3.4", baseTime),
		obs("b", "u1", "9.8.7.6", baseTime.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("DetectImpossibleTravel: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("without coordinates nothing can be impossible, got %d alerts", len(alerts))
	}
}

func TestDetectImpossibleTravel_OverCapStillAnalyzed(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(cityResolver(), AggregatorConfig{MaxObservations: 2})
	sessions := []SessionObservation{
		obs("a", "u1", "1.2.3.4", baseTime),
		obs("b", "u1", "9.8.7.6", baseTime.Add(10*time.Minute)),
		obs("c", "u1", "1.2.3.4", baseTime.Add(20*time.Minute)),
	}

	alerts, err := agg.DetectImpossibleTravel(context.Background(), sessions)
	if err != nil {
		t.Fatalf("DetectImpossibleTravel: %v", err)
	}
	if len(alerts) != 2 {
		t.Errorf("got %d alerts, want 2 (no truncation)", len(alerts))
	}
}

func TestSortAlerts(t *testing.T) {
	t.Parallel()

	alerts := []ThreatAlert{
		{ID: "slow", RequiredSpeedKmh: 50, Timestamp: baseTime},
		{ID: "mid", RequiredSpeedKmh: 900, Timestamp: baseTime},
		{ID: "fast", RequiredSpeedKmh: 1200, Timestamp: baseTime},
		{ID: "mid-newer", RequiredSpeedKmh: 900, Timestamp: baseTime.Add(time.Hour)},
	}
	sortAlerts(alerts)

	want := []string{"fast", "mid-newer", "mid", "slow"}
	for i, id := range want {
		if alerts[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, alerts[i].ID, id)
		}
	}
}

func TestDetectThreatCategories(t *testing.T) {
	t.Parallel()

	now := baseTime

	suspicious := func(id, user, ip string, age time.Duration) SessionObservation {
		o := obs(id, user, ip, now.Add(-age))
		o.IsSuspicious = true
		return o
	}

	burst := func(n int, ip string) []SessionObservation {
		var out []SessionObservation
		for i := range n {
			out = append(out, suspicious(fmt.Sprintf("burst-%s-%d", ip, i), fmt.Sprintf("burst-user-%s-%d", ip, i), ip, time.Duration(i)*30*time.Second))
		}
		return out
	}

	concurrent := func(user string, n int) []SessionObservation {
		var out []SessionObservation
		for i := range n {
			out = append(out, obs(fmt.Sprintf("%s-%d", user, i), user, "198.51.100.1", now.Add(-time.Duration(i+1)*time.Hour)))
		}
		return out
	}

	tests := []struct {
		name string
		obs  []SessionObservation
		want map[ThreatType]struct {
			severity Severity
			affected int
		}
	}{
		{
			name: "seven suspicious sessions from one ip",
			obs:  burst(7, "203.0.113.5"),
			want: map[ThreatType]struct {
				severity Severity
				affected int
			}{
				ThreatTypeSuspiciousBurst: {SeverityHigh, 1},
			},
		},
		{
			name: "five suspicious sessions is not a burst",
			obs:  burst(5, "203.0.113.5"),
		},
		{
			name: "two ips bursting",
			obs:  append(burst(6, "203.0.113.5"), burst(6, "203.0.113.6")...),
			want: map[ThreatType]struct {
				severity Severity
				affected int
			}{
				ThreatTypeSuspiciousBurst: {SeverityHigh, 2},
			},
		},
		{
			name: "burst outside five minute window",
			obs: []SessionObservation{
				suspicious("o1", "x1", "203.0.113.5", 6*time.Minute),
				suspicious("o2", "x2", "203.0.113.5", 7*time.Minute),
				suspicious("o3", "x3", "203.0.113.5", 8*time.Minute),
				suspicious("o4", "x4", "203.0.113.5", 9*time.Minute),
				suspicious("o5", "x5", "203.0.113.5", 10*time.Minute),
				suspicious("o6", "x6", "203.0.113.5", 11*time.Minute),
			},
		},
		{
			name: "repeated suspicious sign-ins for one user",
			obs: []SessionObservation{
				suspicious("r1", "u1", "203.0.113.5", 10*time.Minute),
				suspicious("r2", "u1", "198.51.100.7", 40*time.Minute),
				suspicious("r3", "u2", "198.51.100.8", 20*time.Minute),
			},
			want: map[ThreatType]struct {
				severity Severity
				affected int
			}{
				ThreatTypeLocationAnomaly: {SeverityCritical, 1},
			},
		},
		{
			name: "suspicious sign-ins older than an hour",
			obs: []SessionObservation{
				suspicious("r1", "u1", "203.0.113.5", 70*time.Minute),
				suspicious("r2", "u1", "198.51.100.7", 90*time.Minute),
			},
		},
		{
			name: "one user with eleven live sessions",
			obs:  append(append(concurrent("heavy", 11), concurrent("light", 3)...), concurrent("other", 2)...),
			want: map[ThreatType]struct {
				severity Severity
				affected int
			}{
				ThreatTypeExcessiveConcurrency: {SeverityMedium, 1},
			},
		},
		{
			name: "ten live sessions is within the limit",
			obs:  concurrent("heavy", 10),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			agg := NewAggregator(nil, AggregatorConfig{})
			threats := agg.DetectThreatCategories(tt.obs, now)

			if len(threats) != len(tt.want) {
				t.Fatalf("got %d threats, want %d: %+v", len(threats), len(tt.want), threats)
			}
			for _, th := range threats {
				w, ok := tt.want[th.Type]
				if !ok {
					t.Errorf("unexpected threat %s", th.Type)
					continue
				}
				if th.Severity != w.severity {
					t.Errorf("%s severity = %s, want %s", th.Type, th.Severity, w.severity)
				}
				if th.AffectedUsers != w.affected {
					t.Errorf("%s affectedUsers = %d, want %d", th.Type, th.AffectedUsers, w.affected)
				}
				if !th.DetectedAt.Equal(now) || th.Status != ThreatStatusActive {
					t.Errorf("%s detectedAt/status = %v/%s", th.Type, th.DetectedAt, th.Status)
				}
			}
		})
	}
}

func TestDetectThreatCategories_ExpiredAndRevokedNotCounted(t *testing.T) {
	t.Parallel()

	now := baseTime
	var sessions []SessionObservation
	for i := range 12 {
		o := obs(fmt.Sprintf("s%d", i), "u1", "198.51.100.1", now.Add(-48*time.Hour))
		switch {
		case i < 4:
			o.ExpiresAt = now.Add(-time.Minute)
		case i < 6:
			o.Revoked = true
		}
		sessions = append(sessions, o)
	}

	threats := NewAggregator(nil, AggregatorConfig{}).DetectThreatCategories(sessions, now)
	if len(threats) != 0 {
		t.Errorf("only 6 sessions are live, got threats %+v", threats)
	}
}

func TestDetectThreatCategories_CustomThresholds(t *testing.T) {
	t.Parallel()

	now := baseTime
	sessions := []SessionObservation{
		obs("a", "u1", "198.51.100.1", now.Add(-time.Hour)),
		obs("b", "u1", "198.51.100.1", now.Add(-time.Hour)),
		obs("c", "u1", "198.51.100.1", now.Add(-time.Hour)),
	}

	threats := NewAggregator(nil, AggregatorConfig{ConcurrencyThreshold: 2}).DetectThreatCategories(sessions, now)
	if len(threats) != 1 || threats[0].Type != ThreatTypeExcessiveConcurrency {
		t.Errorf("expected a concurrency threat with threshold 2, got %+v", threats)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize([]Threat{
		{Severity: SeverityCritical},
		{Severity: SeverityHigh},
		{Severity: SeverityHigh},
		{Severity: SeverityMedium},
	})
	want := ThreatSummary{Total: 4, Critical: 1, High: 2, Medium: 1}
	if s != want {
		t.Errorf("Summarize = %+v, want %+v", s, want)
	}
}

func TestAlertStatus(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"pending", " Dismissed ", "BLOCKED"} {
		if _, err := ParseAlertStatus(in); err != nil {
			t.Errorf("ParseAlertStatus(%q): %v", in, err)
		}
	}
	if _, err := ParseAlertStatus("resolved"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ParseAlertStatus(resolved) err = %v, want ErrInvalidStatus", err)
	}
}
