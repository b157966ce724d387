// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/config"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
)

// maxBodyBytes bounds request bodies; the only body is a status update.
const maxBodyBytes = 4 << 10

// SecurityService is the analytics surface the handlers need.
// *detection.Scanner implements it.
type SecurityService interface {
	ImpossibleTravel(ctx context.Context) ([]detection.ThreatAlert, error)
	Threats(ctx context.Context) ([]detection.Threat, error)
	RiskScores(ctx context.Context) ([]detection.UserRisk, error)
	SetAlertStatus(ctx context.Context, id string, status detection.AlertStatus) error
}

var _ SecurityService = (*detection.Scanner)(nil)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the security analytics endpoints.
type Handler struct {
	security  SecurityService
	db        Pinger
	pageSizes config.APIConfig
	startTime time.Time
}

// NewHandler creates a Handler. db may be nil, in which case readiness only
// reflects the process.
func NewHandler(security SecurityService, db Pinger, pages config.APIConfig) *Handler {
	if pages.DefaultPageSize <= 0 {
		pages.DefaultPageSize = 50
	}
	if pages.MaxPageSize < pages.DefaultPageSize {
		pages.MaxPageSize = pages.DefaultPageSize
	}
	return &Handler{
		security:  security,
		db:        db,
		pageSizes: pages,
		startTime: time.Now(),
	}
}

// ImpossibleTravelRequest holds the list query parameters.
type ImpossibleTravelRequest struct {
	Limit  int    `json:"limit" validate:"min=1"`
	Offset int    `json:"offset" validate:"min=0"`
	Status string `json:"status" validate:"omitempty,alert_status"`
}

// ImpossibleTravelResponse is one page of alerts. Total counts every alert
// matching the status filter, before pagination.
type ImpossibleTravelResponse struct {
	Alerts []detection.ThreatAlert `json:"alerts"`
	Total  int                     `json:"total"`
}

// ImpossibleTravel handles GET /api/v1/security/impossible-travel
func (h *Handler) ImpossibleTravel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := ImpossibleTravelRequest{
		Limit:  getIntParam(r, "limit", h.pageSizes.DefaultPageSize),
		Offset: getIntParam(r, "offset", 0),
		Status: r.URL.Query().Get("status"),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}
	req.Limit = min(req.Limit, h.pageSizes.MaxPageSize)

	alerts, err := h.security.ImpossibleTravel(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeScanFailed, "Failed to analyze sessions", err)
		return
	}

	if req.Status != "" {
		status, _ := detection.ParseAlertStatus(req.Status)
		alerts = filterByStatus(alerts, status)
	}

	respondSuccess(w, ImpossibleTravelResponse{
		Alerts: paginate(alerts, req.Offset, req.Limit),
		Total:  len(alerts),
	}, start)
}

func filterByStatus(alerts []detection.ThreatAlert, status detection.AlertStatus) []detection.ThreatAlert {
	filtered := make([]detection.ThreatAlert, 0, len(alerts))
	for i := range alerts {
		if alerts[i].Status == status {
			filtered = append(filtered, alerts[i])
		}
	}
	return filtered
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

// AlertStatusRequest is the body of a moderation update.
type AlertStatusRequest struct {
	Status string `json:"status" validate:"required,alert_status"`
}

// AlertStatusResponse echoes the stored status.
type AlertStatusResponse struct {
	ID     string                `json:"id"`
	Status detection.AlertStatus `json:"status"`
}

// UpdateAlertStatus handles PUT /api/v1/security/impossible-travel/{id}/status
func (h *Handler) UpdateAlertStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	var req AlertStatusRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidJSON, "Request body must be a JSON object", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	status, err := detection.ParseAlertStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	if err := h.security.SetAlertStatus(r.Context(), id, status); err != nil {
		switch {
		case errors.Is(err, detection.ErrAlertNotFound):
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "Alert not found", nil)
		case errors.Is(err, detection.ErrInvalidStatus):
			respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		default:
			respondError(w, http.StatusInternalServerError, ErrCodeUpdateFailed, "Failed to update alert status", err)
		}
		return
	}

	respondSuccess(w, AlertStatusResponse{ID: id, Status: status}, start)
}

// ThreatsResponse carries the category threats and their severity counts.
type ThreatsResponse struct {
	Threats []detection.Threat      `json:"threats"`
	Summary detection.ThreatSummary `json:"summary"`
}

// Threats handles GET /api/v1/security/threats
func (h *Handler) Threats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	threats, err := h.security.Threats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeScanFailed, "Failed to analyze sessions", err)
		return
	}
	if threats == nil {
		threats = []detection.Threat{}
	}

	respondSuccess(w, ThreatsResponse{
		Threats: threats,
		Summary: detection.Summarize(threats),
	}, start)
}

// RiskRequest holds the risk query parameters.
type RiskRequest struct {
	MinScore int `json:"min_score" validate:"min=0,max=100"`
}

// Risk handles GET /api/v1/security/risk
func (h *Handler) Risk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := RiskRequest{MinScore: getIntParam(r, "min_score", 0)}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	risks, err := h.security.RiskScores(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeScanFailed, "Failed to score users", err)
		return
	}

	filtered := make([]detection.UserRisk, 0, len(risks))
	for i := range risks {
		if risks[i].Score >= req.MinScore {
			filtered = append(filtered, risks[i])
		}
	}

	respondSuccess(w, filtered, start)
}
