// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package database

import (
	"context"
	"testing"
	"time"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/config"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
)

// testDBSemaphore serializes DuckDB tests; concurrent CGO connections can
// hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

// setupTestDB creates an in-memory database held for the whole test.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 1})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// seedSessions inserts two users and a mix of sessions around testNow.
func seedSessions(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()

	for _, u := range []User{
		{ID: "u1", Name: "Alice", Email: "alice@example.org"},
		{ID: "u2", Name: "Bob", Email: "bob@example.org"},
	} {
		if err := db.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser() error = %v", err)
		}
	}

	sessions := []detection.SessionObservation{
		{SessionID: "s-old", UserID: "u1", IPAddress: "1.2.3.4", CreatedAt: testNow.Add(-48 * time.Hour), ExpiresAt: testNow.Add(-24 * time.Hour)},
		{SessionID: "s1", UserID: "u1", IPAddress: "1.2.3.4", UserAgent: "Firefox", CreatedAt: testNow.Add(-2 * time.Hour), ExpiresAt: testNow.Add(24 * time.Hour), TrustLevel: 2},
		{SessionID: "s2", UserID: "u1", IPAddress: "9.8.7.6", CreatedAt: testNow.Add(-30 * time.Minute), ExpiresAt: testNow.Add(24 * time.Hour), IsSuspicious: true},
		{SessionID: "s3", UserID: "u2", IPAddress: "", CreatedAt: testNow.Add(-10 * time.Minute)},
		{SessionID: "s4", UserID: "u2", IPAddress: "81.2.69.160", CreatedAt: testNow.Add(-5 * time.Minute), ExpiresAt: testNow.Add(time.Hour), Revoked: true, IsSuspicious: true},
		{SessionID: "s5", UserID: "ghost", IPAddress: "24.60.10.1", CreatedAt: testNow.Add(-1 * time.Minute), ExpiresAt: testNow.Add(time.Hour)},
	}
	for i := range sessions {
		if err := db.UpsertSession(ctx, &sessions[i]); err != nil {
			t.Fatalf("UpsertSession(%s) error = %v", sessions[i].SessionID, err)
		}
	}
}

func sessionIDs(sessions []detection.SessionObservation) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.SessionID
	}
	return ids
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRecentSessions(t *testing.T) {
	db := setupTestDB(t)
	seedSessions(t, db)
	ctx := context.Background()

	got, err := db.RecentSessions(ctx, testNow.Add(-24*time.Hour), 0)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	if want := []string{"s5", "s4", "s3", "s2", "s1"}; !equalIDs(sessionIDs(got), want) {
		t.Errorf("RecentSessions() = %v, want %v", sessionIDs(got), want)
	}

	limited, err := db.RecentSessions(ctx, testNow.Add(-24*time.Hour), 2)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	if want := []string{"s5", "s4"}; !equalIDs(sessionIDs(limited), want) {
		t.Errorf("RecentSessions(limit 2) = %v, want %v", sessionIDs(limited), want)
	}
}

func TestRecentSessionsJoinsUsers(t *testing.T) {
	db := setupTestDB(t)
	seedSessions(t, db)

	got, err := db.RecentSessions(context.Background(), testNow.Add(-3*time.Hour), 0)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}

	byID := make(map[string]detection.SessionObservation)
	for _, s := range got {
		byID[s.SessionID] = s
	}

	s1 := byID["s1"]
	if s1.UserName != "Alice" || s1.UserEmail != "alice@example.org" {
		t.Errorf("s1 user = %q <%q>, want Alice", s1.UserName, s1.UserEmail)
	}
	if s1.UserAgent != "Firefox" || s1.TrustLevel != 2 {
		t.Errorf("s1 = %+v", s1)
	}
	if !s1.CreatedAt.Equal(testNow.Add(-2 * time.Hour)) {
		t.Errorf("s1 CreatedAt = %v, want %v", s1.CreatedAt, testNow.Add(-2*time.Hour))
	}
	if !s1.ExpiresAt.Equal(testNow.Add(24 * time.Hour)) {
		t.Errorf("s1 ExpiresAt = %v", s1.ExpiresAt)
	}

	if s3 := byID["s3"]; !s3.ExpiresAt.IsZero() || s3.IPAddress != "" {
		t.Errorf("s3 should have no expiry and no IP, got %+v", s3)
	}
	if s5 := byID["s5"]; s5.UserName != "" {
		t.Errorf("session of unknown user should have empty name, got %q", s5.UserName)
	}
}

func TestSuspiciousSessions(t *testing.T) {
	db := setupTestDB(t)
	seedSessions(t, db)

	got, err := db.SuspiciousSessions(context.Background(), testNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("SuspiciousSessions() error = %v", err)
	}
	if want := []string{"s4", "s2"}; !equalIDs(sessionIDs(got), want) {
		t.Errorf("SuspiciousSessions() = %v, want %v", sessionIDs(got), want)
	}

	narrow, err := db.SuspiciousSessions(context.Background(), testNow.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("SuspiciousSessions() error = %v", err)
	}
	if want := []string{"s4"}; !equalIDs(sessionIDs(narrow), want) {
		t.Errorf("SuspiciousSessions(10m) = %v, want %v", sessionIDs(narrow), want)
	}
}

func TestActiveSessions(t *testing.T) {
	db := setupTestDB(t)
	seedSessions(t, db)

	got, err := db.ActiveSessions(context.Background(), testNow)
	if err != nil {
		t.Fatalf("ActiveSessions() error = %v", err)
	}
	// s-old expired, s4 revoked; s3 never expires.
	if want := []string{"s5", "s1", "s2", "s3"}; !equalIDs(sessionIDs(got), want) {
		t.Errorf("ActiveSessions() = %v, want %v", sessionIDs(got), want)
	}
	for _, s := range got {
		if !s.Active(testNow) {
			t.Errorf("session %s returned as active but Active() = false", s.SessionID)
		}
	}
}

func TestUpsertAndRevokeSession(t *testing.T) {
	db := setupTestDB(t)
	seedSessions(t, db)
	ctx := context.Background()

	updated := detection.SessionObservation{
		SessionID:    "s1",
		UserID:       "u1",
		IPAddress:    "203.0.113.9",
		CreatedAt:    testNow.Add(-2 * time.Hour),
		ExpiresAt:    testNow.Add(24 * time.Hour),
		IsSuspicious: true,
	}
	if err := db.UpsertSession(ctx, &updated); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}
	if err := db.RevokeSession(ctx, "s2"); err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}
	if err := db.RevokeSession(ctx, "missing"); err != nil {
		t.Errorf("RevokeSession(missing) error = %v, want nil", err)
	}

	active, err := db.ActiveSessions(ctx, testNow)
	if err != nil {
		t.Fatalf("ActiveSessions() error = %v", err)
	}
	for _, s := range active {
		if s.SessionID == "s2" {
			t.Error("revoked session s2 still active")
		}
		if s.SessionID == "s1" && (s.IPAddress != "203.0.113.9" || !s.IsSuspicious) {
			t.Errorf("s1 not updated: %+v", s)
		}
	}
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if db.Conn() == nil {
		t.Error("Conn() returned nil")
	}
}

func TestEmptyResultIsNotNil(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.RecentSessions(context.Background(), testNow, 10)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("RecentSessions() = %v, want empty non-nil slice", got)
	}
}
