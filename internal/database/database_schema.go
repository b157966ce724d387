// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

/*
database_schema.go - Database Schema Management

Tables:
  - users: community accounts referenced by sessions
  - sessions: authentication sessions written by the web tier, including the
    client IP, expiry, revocation and the suspicious flag set at sign-in

Index Strategy:
No secondary ART indexes. DuckDB refuses ON CONFLICT updates of indexed
columns, and the scanner's range filters on created_at and expires_at are
served by the automatic min-max zonemaps.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates tables and indexes
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT,
			email TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP,
			revoked BOOLEAN NOT NULL DEFAULT false,
			is_suspicious BOOLEAN NOT NULL DEFAULT false,
			trust_level INTEGER NOT NULL DEFAULT 0
		)`,
	}
}
