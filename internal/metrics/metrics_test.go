// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSecurityScan(t *testing.T) {
	beforeOK := testutil.ToFloat64(SecurityScansTotal.WithLabelValues("impossible_travel", "success"))
	beforeErr := testutil.ToFloat64(SecurityScansTotal.WithLabelValues("impossible_travel", "error"))

	RecordSecurityScan("impossible_travel", 20*time.Millisecond, nil)
	RecordSecurityScan("impossible_travel", 5*time.Millisecond, errors.New("database is closed"))

	if got := testutil.ToFloat64(SecurityScansTotal.WithLabelValues("impossible_travel", "success")); got != beforeOK+1 {
		t.Errorf("success count = %v, want %v", got, beforeOK+1)
	}
	if got := testutil.ToFloat64(SecurityScansTotal.WithLabelValues("impossible_travel", "error")); got != beforeErr+1 {
		t.Errorf("error count = %v, want %v", got, beforeErr+1)
	}
}

func TestRecordGeoIPLookup(t *testing.T) {
	before := testutil.ToFloat64(GeoIPLookups.WithLabelValues("ip-api", "not_found"))

	RecordGeoIPLookup("ip-api", "not_found", time.Millisecond)

	if got := testutil.ToFloat64(GeoIPLookups.WithLabelValues("ip-api", "not_found")); got != before+1 {
		t.Errorf("lookups = %v, want %v", got, before+1)
	}
}

func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantError float64
	}{
		{"success", nil, 0},
		{"failure", errors.New("Catalog Error: table sessions does not exist"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := "select_recent_" + tt.name
			RecordDBQuery(op, 3*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues(op)); got != tt.wantError {
				t.Errorf("errors = %v, want %v", got, tt.wantError)
			}
		})
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/security/threats", "200"))

	RecordAPIRequest("GET", "/api/v1/security/threats", "200", 12*time.Millisecond)

	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/security/threats", "200")); got != before+1 {
		t.Errorf("requests = %v, want %v", got, before+1)
	}
}

func TestRecordEventPublish(t *testing.T) {
	before := testutil.ToFloat64(EventsPublished.WithLabelValues("security.threats", "error"))

	RecordEventPublish("security.threats", errors.New("publisher closed"))

	if got := testutil.ToFloat64(EventsPublished.WithLabelValues("security.threats", "error")); got != before+1 {
		t.Errorf("published = %v, want %v", got, before+1)
	}
}
