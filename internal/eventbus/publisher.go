// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/metrics"
)

// AlertEvent is the payload published on TopicImpossibleTravel.
type AlertEvent struct {
	Alert       detection.ThreatAlert `json:"alert"`
	PublishedAt time.Time             `json:"publishedAt"`
}

// ThreatEvent is the payload published on TopicThreats.
type ThreatEvent struct {
	Threat      detection.Threat `json:"threat"`
	PublishedAt time.Time        `json:"publishedAt"`
}

// Publisher implements detection.EventPublisher on top of a Watermill
// publisher.
type Publisher struct {
	publisher message.Publisher
	now       func() time.Time
}

var _ detection.EventPublisher = (*Publisher)(nil)

// NewPublisher wraps pub.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{publisher: pub, now: time.Now}
}

// PublishAlerts publishes one message per alert. Every alert is attempted;
// the returned error joins all failures.
func (p *Publisher) PublishAlerts(ctx context.Context, alerts []detection.ThreatAlert) error {
	var errs []error
	for i := range alerts {
		a := &alerts[i]
		msg, err := newMessage(ctx, AlertEvent{Alert: *a, PublishedAt: p.now().UTC()})
		if err == nil {
			msg.Metadata.Set("alert_id", a.ID)
			msg.Metadata.Set("user_id", a.UserID)
			err = p.publish(TopicImpossibleTravel, msg)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("publish alert %s: %w", a.ID, err))
		}
	}
	return errors.Join(errs...)
}

// PublishThreats publishes one message per threat.
func (p *Publisher) PublishThreats(ctx context.Context, threats []detection.Threat) error {
	var errs []error
	for i := range threats {
		th := &threats[i]
		msg, err := newMessage(ctx, ThreatEvent{Threat: *th, PublishedAt: p.now().UTC()})
		if err == nil {
			msg.Metadata.Set("threat_type", string(th.Type))
			msg.Metadata.Set("severity", string(th.Severity))
			err = p.publish(TopicThreats, msg)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s threat: %w", th.Type, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) publish(topic string, msg *message.Message) error {
	err := p.publisher.Publish(topic, msg)
	metrics.RecordEventPublish(topic, err)
	return err
}

func newMessage(ctx context.Context, payload interface{}) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	return msg, nil
}
