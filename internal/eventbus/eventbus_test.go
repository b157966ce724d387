// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package eventbus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/config"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testAlert(id string) detection.ThreatAlert {
	return detection.ThreatAlert{
		ID:               id,
		SessionID:        "session-" + id,
		UserID:           "user-1",
		PreviousLocation: detection.Location{City: "New York", Country: "US", IP: "1.2.3.4"},
		CurrentLocation:  detection.Location{City: "Tokyo", Country: "JP", IP: "9.8.7.6"},
		DistanceKm:       10851.7,
		DistanceMi:       6742.99,
		TimeDiffHours:    1,
		RequiredSpeedKmh: 10851.7,
		Timestamp:        testNow,
		Status:           detection.AlertStatusPending,
	}
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublishAlerts(t *testing.T) {
	bus := New(config.EventsConfig{BufferSize: 8})
	defer bus.Close()

	ch, err := bus.Subscriber().Subscribe(context.Background(), TopicImpossibleTravel)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	pub := NewPublisher(bus.Publisher())
	pub.now = func() time.Time { return testNow }

	if err := pub.PublishAlerts(context.Background(), []detection.ThreatAlert{testAlert("a1"), testAlert("a2")}); err != nil {
		t.Fatalf("PublishAlerts() error = %v", err)
	}

	// gochannel delivers each message from its own goroutine, so arrival
	// order is not publish order.
	got := make(map[string]bool)
	for range 2 {
		msg := receive(t, ch)
		id := msg.Metadata.Get("alert_id")
		got[id] = true

		var event AlertEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if event.Alert.ID != id || event.Alert.CurrentLocation.City != "Tokyo" {
			t.Errorf("payload alert = %+v, metadata alert_id = %q", event.Alert, id)
		}
		if !event.PublishedAt.Equal(testNow) {
			t.Errorf("PublishedAt = %v, want %v", event.PublishedAt, testNow)
		}
	}
	for _, want := range []string{"a1", "a2"} {
		if !got[want] {
			t.Errorf("alert %s not received, got %v", want, got)
		}
	}
}

func TestPublishThreats(t *testing.T) {
	bus := New(config.EventsConfig{})
	defer bus.Close()

	ch, err := bus.Subscriber().Subscribe(context.Background(), TopicThreats)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	threats := []detection.Threat{{
		Type:          detection.ThreatTypeSuspiciousBurst,
		Severity:      detection.SeverityHigh,
		Description:   "burst",
		AffectedUsers: 1,
		DetectedAt:    testNow,
		Status:        detection.ThreatStatusActive,
	}}
	if err := NewPublisher(bus.Publisher()).PublishThreats(context.Background(), threats); err != nil {
		t.Fatalf("PublishThreats() error = %v", err)
	}

	msg := receive(t, ch)
	if msg.Metadata.Get("severity") != string(detection.SeverityHigh) {
		t.Errorf("severity metadata = %q", msg.Metadata.Get("severity"))
	}
	var event ThreatEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if event.Threat.Type != detection.ThreatTypeSuspiciousBurst {
		t.Errorf("threat type = %q", event.Threat.Type)
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := New(config.EventsConfig{})
	defer bus.Close()

	if err := NewPublisher(bus.Publisher()).PublishAlerts(context.Background(), []detection.ThreatAlert{testAlert("a1")}); err != nil {
		t.Errorf("PublishAlerts() without subscribers error = %v", err)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("closed") }
func (failingPublisher) Close() error                              { return nil }

func TestPublishErrorsAreJoined(t *testing.T) {
	pub := NewPublisher(failingPublisher{})

	err := pub.PublishAlerts(context.Background(), []detection.ThreatAlert{testAlert("a1"), testAlert("a2")})
	if err == nil {
		t.Fatal("PublishAlerts() should fail")
	}
	for _, id := range []string{"a1", "a2"} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("error %q should mention %s", err, id)
		}
	}
}

func TestAuditServiceConsumes(t *testing.T) {
	bus := New(config.EventsConfig{})
	defer bus.Close()

	svc := NewAuditService(bus.Subscriber(), bus.Logger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-svc.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("audit router did not start")
	}

	pub := NewPublisher(bus.Publisher())
	if err := pub.PublishAlerts(ctx, []detection.ThreatAlert{testAlert("a1")}); err != nil {
		t.Fatalf("PublishAlerts() error = %v", err)
	}
	if err := pub.PublishThreats(ctx, []detection.Threat{{Type: detection.ThreatTypeExcessiveConcurrency, Severity: detection.SeverityMedium}}); err != nil {
		t.Fatalf("PublishThreats() error = %v", err)
	}
	// Malformed payloads are acked without counting.
	if err := bus.Publisher().Publish(TopicThreats, message.NewMessage("bad", []byte("{"))); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for svc.Handled() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := svc.Handled(); got != 2 {
		t.Errorf("Handled() = %d, want 2", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if svc.String() != "security-audit" {
		t.Errorf("String() = %q", svc.String())
	}
}
