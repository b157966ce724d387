// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import (
	"context"
	"net/netip"
	"sync"
	"time"
)

// Reference cities.
var (
	newYork = GeoPoint{Latitude: 40.7128, Longitude: -74.0060, City: "New York", Country: "US"}
	tokyo   = GeoPoint{Latitude: 35.6762, Longitude: 139.6503, City: "Tokyo", Country: "JP"}
	london  = GeoPoint{Latitude: 51.5074, Longitude: -0.1278, City: "London", Country: "GB"}
	boston  = GeoPoint{Latitude: 42.3601, Longitude: -71.0589, City: "Boston", Country: "US"}
)

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// mockResolver resolves from a fixed table and counts lookups per address.
type mockResolver struct {
	mu      sync.Mutex
	table   map[string]GeoPoint
	calls   map[string]int
	block   bool
	panicOn string
}

func newMockResolver(table map[string]GeoPoint) *mockResolver {
	return &mockResolver{table: table, calls: make(map[string]int)}
}

func (m *mockResolver) Resolve(ctx context.Context, ip netip.Addr) *GeoPoint {
	m.mu.Lock()
	m.calls[ip.String()]++
	block, panicOn := m.block, m.panicOn
	m.mu.Unlock()

	if ip.String() == panicOn {
		panic("lookup exploded")
	}
	if block {
		<-ctx.Done()
		return nil
	}
	p, ok := m.table[ip.String()]
	if !ok {
		return nil
	}
	return &p
}

func (m *mockResolver) callsFor(ip string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ip]
}

func (m *mockResolver) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func cityResolver() *mockResolver {
	return newMockResolver(map[string]GeoPoint{
		"1.2.3.4":      newYork,
		"9.8.7.6":      tokyo,
		"81.2.69.160":  london,
		"24.60.10.1":   boston,
		"2001:db8::10": london,
	})
}

func obs(sessionID, userID, ip string, at time.Time) SessionObservation {
	return SessionObservation{
		SessionID: sessionID,
		UserID:    userID,
		UserName:  "user-" + userID,
		UserEmail: userID + "@example.com",
		IPAddress: ip,
		CreatedAt: at,
		ExpiresAt: at.Add(7 * 24 * time.Hour),
	}
}
