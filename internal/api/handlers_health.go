// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package api

import (
	"net/http"
	"time"
)

// HealthLive handles GET /api/v1/health/live. It answers 200 while the
// process is running, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
		Metadata: Metadata{
			Timestamp: time.Now(),
		},
	})
}

// HealthReady handles GET /api/v1/health/ready. It answers 503 until the
// session store responds to a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db == nil || h.db.Ping(r.Context()) == nil

	if !dbConnected {
		respondError(w, http.StatusServiceUnavailable, ErrCodeNotReady, "Session store is unavailable", nil)
		return
	}

	respondJSON(w, http.StatusOK, &APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"ready":              true,
			"database_connected": dbConnected,
		},
		Metadata: Metadata{
			Timestamp: time.Now(),
		},
	})
}
