// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import (
	"cmp"
	"slices"
	"time"
)

// Risk score weights. A user's score is
//
//	min(100, 30*suspicious + 10*max(0, active-3))
//
// where active counts live sessions and suspicious counts the live ones
// flagged suspicious.
const (
	riskSuspiciousWeight  = 30
	riskConcurrencyWeight = 10
	riskConcurrencyFree   = 3
	maxRiskScore          = 100
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// UserRisk is the risk posture of one user.
type UserRisk struct {
	UserID             string    `json:"userId"`
	UserName           string    `json:"userName"`
	UserEmail          string    `json:"userEmail"`
	ActiveSessions     int       `json:"activeSessions"`
	SuspiciousSessions int       `json:"suspiciousSessions"`
	Score              int       `json:"score"`
	Level              RiskLevel `json:"level"`
}

// RiskScore computes the 0-100 score from session counts.
func RiskScore(active, suspicious int) int {
	score := riskSuspiciousWeight*max(0, suspicious) +
		riskConcurrencyWeight*max(0, active-riskConcurrencyFree)
	return min(score, maxRiskScore)
}

// RiskLevelFor maps a score onto a level.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 75:
		return RiskLevelCritical
	case score >= 50:
		return RiskLevelHigh
	case score >= 25:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// ScoreUsers computes a UserRisk for every user with at least one live
// session, highest score first.
func ScoreUsers(observations []SessionObservation, now time.Time) []UserRisk {
	byUser := make(map[string]*UserRisk)
	for i := range observations {
		o := &observations[i]
		if !o.Active(now) {
			continue
		}
		r, ok := byUser[o.UserID]
		if !ok {
			r = &UserRisk{UserID: o.UserID, UserName: o.UserName, UserEmail: o.UserEmail}
			byUser[o.UserID] = r
		}
		r.ActiveSessions++
		if o.IsSuspicious {
			r.SuspiciousSessions++
		}
	}

	out := make([]UserRisk, 0, len(byUser))
	for _, r := range byUser {
		r.Score = RiskScore(r.ActiveSessions, r.SuspiciousSessions)
		r.Level = RiskLevelFor(r.Score)
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b UserRisk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out
}
