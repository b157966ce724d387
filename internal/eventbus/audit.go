// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
)

// AuditService consumes both security topics and writes each finding to
// the audit log. It implements suture.Service; every Serve call builds a
// fresh router because a Watermill router cannot be run twice.
type AuditService struct {
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter

	handled     atomic.Int64
	running     chan struct{}
	runningOnce sync.Once
}

// NewAuditService creates the consumer.
func NewAuditService(sub message.Subscriber, logger watermill.LoggerAdapter) *AuditService {
	if logger == nil {
		logger = NewLogger()
	}
	return &AuditService{
		subscriber: sub,
		logger:     logger,
		running:    make(chan struct{}),
	}
}

// Serve runs the router until ctx is cancelled.
func (s *AuditService) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, s.logger)
	if err != nil {
		return fmt.Errorf("create watermill router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          s.logger,
	}
	router.AddMiddleware(retry.Middleware)

	router.AddConsumerHandler("audit-impossible-travel", TopicImpossibleTravel, s.subscriber, s.handleAlert)
	router.AddConsumerHandler("audit-threats", TopicThreats, s.subscriber, s.handleThreat)

	go func() {
		select {
		case <-router.Running():
			s.runningOnce.Do(func() { close(s.running) })
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("audit router: %w", err)
	}
	return ctx.Err()
}

// Running is closed once the first router has subscribed.
func (s *AuditService) Running() <-chan struct{} {
	return s.running
}

// Handled returns the number of messages consumed.
func (s *AuditService) Handled() int64 {
	return s.handled.Load()
}

func (s *AuditService) String() string {
	return "security-audit"
}

// Malformed payloads are acked; retrying cannot fix them.
func (s *AuditService) handleAlert(msg *message.Message) error {
	var event AlertEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("malformed impossible travel event")
		return nil
	}
	s.handled.Add(1)

	a := event.Alert
	logging.Warn().
		Str("event", "impossible_travel").
		Str("alert_id", a.ID).
		Str("session_id", a.SessionID).
		Str("user_id", a.UserID).
		Str("from", a.PreviousLocation.City+", "+a.PreviousLocation.Country).
		Str("to", a.CurrentLocation.City+", "+a.CurrentLocation.Country).
		Float64("distance_km", a.DistanceKm).
		Float64("speed_kmh", a.RequiredSpeedKmh).
		Msg("security alert")
	return nil
}

func (s *AuditService) handleThreat(msg *message.Message) error {
	var event ThreatEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("malformed threat event")
		return nil
	}
	s.handled.Add(1)

	th := event.Threat
	logging.Warn().
		Str("event", "threat").
		Str("type", string(th.Type)).
		Str("severity", string(th.Severity)).
		Int("affected_users", th.AffectedUsers).
		Msg(th.Description)
	return nil
}
