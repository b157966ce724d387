// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/metrics"
)

var _ detection.SessionSource = (*DB)(nil)

// User is a community account.
type User struct {
	ID    string
	Name  string
	Email string
}

const sessionSelectColumns = `
		s.id,
		s.user_id,
		COALESCE(u.name, '') AS user_name,
		COALESCE(u.email, '') AS user_email,
		COALESCE(s.ip_address, '') AS ip_address,
		COALESCE(s.user_agent, '') AS user_agent,
		s.created_at,
		s.expires_at,
		s.revoked,
		s.is_suspicious,
		s.trust_level`

const sessionFromClause = `FROM sessions s
		LEFT JOIN users u ON s.user_id = u.id`

// scanSession scans a single row into a SessionObservation.
func scanSession(scanner interface {
	Scan(dest ...interface{}) error
}, obs *detection.SessionObservation) error {
	var expiresAt sql.NullTime
	if err := scanner.Scan(
		&obs.SessionID,
		&obs.UserID,
		&obs.UserName,
		&obs.UserEmail,
		&obs.IPAddress,
		&obs.UserAgent,
		&obs.CreatedAt,
		&expiresAt,
		&obs.Revoked,
		&obs.IsSuspicious,
		&obs.TrustLevel,
	); err != nil {
		return err
	}
	if expiresAt.Valid {
		obs.ExpiresAt = expiresAt.Time
	}
	return nil
}

func (db *DB) querySessions(ctx context.Context, operation, query string, args ...interface{}) ([]detection.SessionObservation, error) {
	start := time.Now()
	sessions, err := db.doQuerySessions(ctx, query, args...)
	metrics.RecordDBQuery(operation, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return sessions, nil
}

func (db *DB) doQuerySessions(ctx context.Context, query string, args ...interface{}) ([]detection.SessionObservation, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeWithLog(rows, "rows")

	sessions := make([]detection.SessionObservation, 0)
	for rows.Next() {
		var obs detection.SessionObservation
		if err := scanSession(rows, &obs); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, obs)
	}
	return sessions, rows.Err()
}

// RecentSessions returns up to limit sessions created after since, newest
// first. limit <= 0 means no limit.
func (db *DB) RecentSessions(ctx context.Context, since time.Time, limit int) ([]detection.SessionObservation, error) {
	query := `SELECT ` + sessionSelectColumns + `
		` + sessionFromClause + `
		WHERE s.created_at > ?
		ORDER BY s.created_at DESC, s.id`
	args := []interface{}{since.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return db.querySessions(ctx, "recent_sessions", query, args...)
}

// SuspiciousSessions returns sessions flagged suspicious created after since.
func (db *DB) SuspiciousSessions(ctx context.Context, since time.Time) ([]detection.SessionObservation, error) {
	query := `SELECT ` + sessionSelectColumns + `
		` + sessionFromClause + `
		WHERE s.is_suspicious AND s.created_at > ?
		ORDER BY s.created_at DESC, s.id`
	return db.querySessions(ctx, "suspicious_sessions", query, since.UTC())
}

// ActiveSessions returns sessions that are neither revoked nor expired at now.
func (db *DB) ActiveSessions(ctx context.Context, now time.Time) ([]detection.SessionObservation, error) {
	query := `SELECT ` + sessionSelectColumns + `
		` + sessionFromClause + `
		WHERE NOT s.revoked AND (s.expires_at IS NULL OR s.expires_at > ?)
		ORDER BY s.user_id, s.created_at`
	return db.querySessions(ctx, "active_sessions", query, now.UTC())
}

// UpsertUser inserts or replaces a user.
func (db *DB) UpsertUser(ctx context.Context, u User) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email`,
		u.ID, u.Name, u.Email)
	metrics.RecordDBQuery("upsert_user", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
	}
	return nil
}

// UpsertSession inserts or replaces a session. User name and email come
// from the users table and are ignored here.
func (db *DB) UpsertSession(ctx context.Context, s *detection.SessionObservation) error {
	var expiresAt sql.NullTime
	if !s.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: s.ExpiresAt.UTC(), Valid: true}
	}

	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, ip_address, user_agent, created_at, expires_at, revoked, is_suspicious, trust_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			ip_address = excluded.ip_address,
			user_agent = excluded.user_agent,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			revoked = excluded.revoked,
			is_suspicious = excluded.is_suspicious,
			trust_level = excluded.trust_level`,
		s.SessionID, s.UserID, s.IPAddress, s.UserAgent, s.CreatedAt.UTC(), expiresAt,
		s.Revoked, s.IsSuspicious, s.TrustLevel)
	metrics.RecordDBQuery("upsert_session", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", s.SessionID, err)
	}
	return nil
}

// RevokeSession marks a session revoked. Unknown IDs are not an error.
func (db *DB) RevokeSession(ctx context.Context, id string) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `UPDATE sessions SET revoked = true WHERE id = ?`, id)
	metrics.RecordDBQuery("revoke_session", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to revoke session %s: %w", id, err)
	}
	return nil
}
