// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import (
	"context"
	"time"
)

// SessionSource supplies session observations from storage.
type SessionSource interface {
	// RecentSessions returns up to limit sessions created after since,
	// newest first. limit <= 0 means no limit.
	RecentSessions(ctx context.Context, since time.Time, limit int) ([]SessionObservation, error)

	// SuspiciousSessions returns sessions flagged suspicious created after since.
	SuspiciousSessions(ctx context.Context, since time.Time) ([]SessionObservation, error)

	// ActiveSessions returns sessions that are live at now.
	ActiveSessions(ctx context.Context, now time.Time) ([]SessionObservation, error)
}

// AlertStatusStore keeps the moderation status of alerts between scans.
type AlertStatusStore interface {
	// Statuses returns the stored status for each known ID. Unknown IDs are
	// absent from the map.
	Statuses(ctx context.Context, ids []string) (map[string]AlertStatus, error)

	// Track records ids as pending unless they already have a status.
	Track(ctx context.Context, ids []string) error

	// SetStatus changes the status of a tracked alert. It returns an error
	// wrapping ErrAlertNotFound for an untracked ID.
	SetStatus(ctx context.Context, id string, status AlertStatus) error
}

// EventPublisher announces findings to interested subscribers.
type EventPublisher interface {
	PublishAlerts(ctx context.Context, alerts []ThreatAlert) error
	PublishThreats(ctx context.Context, threats []Threat) error
}
