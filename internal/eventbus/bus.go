// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

// Package eventbus carries security findings from the scanner to in-process
// consumers over a Watermill Go channel pub/sub.
//
// Each impossible travel alert and each threat is published as its own
// message so consumers can ack, retry and fan out per finding.
package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/config"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
)

// Topics
const (
	TopicImpossibleTravel = "security.impossible_travel"
	TopicThreats          = "security.threats"
)

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 256

// Bus owns the pub/sub shared by publishers and subscribers.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// New creates a bus. Messages published while nobody subscribes are dropped.
func New(cfg config.EventsConfig) *Bus {
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	logger := NewLogger()
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: buffer,
		}, logger),
		logger: logger,
	}
}

// NewLogger returns a Watermill logger writing through the service logger.
func NewLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLogger().With("component", "eventbus"))
}

// Publisher returns the raw Watermill publisher.
func (b *Bus) Publisher() message.Publisher {
	return b.pubsub
}

// Subscriber returns the raw Watermill subscriber.
func (b *Bus) Subscriber() message.Subscriber {
	return b.pubsub
}

// Logger returns the bus logger.
func (b *Bus) Logger() watermill.LoggerAdapter {
	return b.logger
}

// Close closes all subscriptions.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
