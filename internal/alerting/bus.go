// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

// Package alerting fans verdict records out to downstream consumers:
// the audit store, the webhook notifier, and connected websocket
// clients. A Watermill router over an in-process pub/sub decouples the
// device workers from consumer latency and gives each consumer its own
// retry behavior.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/lanwarden/lanwarden/internal/dispatch"
	"github.com/lanwarden/lanwarden/internal/logging"
)

// TopicVerdicts carries every verdict record, suspicious or not.
const TopicVerdicts = "verdicts"

// BusConfig holds configuration for the alert bus.
type BusConfig struct {
	// CloseTimeout is how long to wait for handlers when closing.
	CloseTimeout time.Duration

	// BufferSize is the per-subscriber channel depth.
	BufferSize int64

	// Retry configuration for failing consumers.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// DefaultBusConfig returns production defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		CloseTimeout:         10 * time.Second,
		BufferSize:           1024,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
	}
}

// AuditAppender persists verdict records.
type AuditAppender interface {
	Append(dispatch.Record) error
}

// Broadcaster pushes alert records to connected clients.
type Broadcaster interface {
	BroadcastAlert(dispatch.Record)
}

// Bus is the verdict fan-out pipeline.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	config BusConfig
}

// NewBus creates the bus with panic recovery and retry middleware.
// Consumers are attached before Serve is called.
func NewBus(cfg BusConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.BufferSize,
	}, logger)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("alerting: create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)

	return &Bus{pubsub: pubsub, router: router, config: cfg}, nil
}

// Publish puts one verdict record on the bus.
func (b *Bus) Publish(rec dispatch.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("alerting: marshal record: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	if err := b.pubsub.Publish(TopicVerdicts, msg); err != nil {
		return fmt.Errorf("alerting: publish record: %w", err)
	}
	return nil
}

// Sink adapts the bus to the dispatcher's delivery interface. Publish
// failures are logged rather than propagated so a bus problem never
// blocks a device worker.
func (b *Bus) Sink() dispatch.Sink {
	return dispatch.SinkFunc(func(rec dispatch.Record) {
		if err := b.Publish(rec); err != nil {
			logging.Err(err).Str("record_id", rec.ID).Msg("verdict publish failed")
		}
	})
}

// AttachAuditStore subscribes the audit store to every verdict.
func (b *Bus) AttachAuditStore(store AuditAppender) {
	b.router.AddConsumerHandler(
		"audit-writer",
		TopicVerdicts,
		b.pubsub,
		func(msg *message.Message) error {
			rec, err := decodeRecord(msg)
			if err != nil {
				return err
			}
			return store.Append(rec)
		},
	)
}

// AttachWebhook subscribes the webhook notifier to suspicious verdicts.
func (b *Bus) AttachWebhook(notifier *WebhookNotifier) {
	b.router.AddConsumerHandler(
		"webhook-notifier",
		TopicVerdicts,
		b.pubsub,
		func(msg *message.Message) error {
			rec, err := decodeRecord(msg)
			if err != nil {
				return err
			}
			if !rec.Verdict.Suspicious {
				return nil
			}
			return notifier.Send(msg.Context(), rec)
		},
	)
}

// AttachBroadcaster subscribes a websocket broadcaster to suspicious
// verdicts. Broadcasting is best-effort and never fails the handler.
func (b *Bus) AttachBroadcaster(broadcaster Broadcaster) {
	b.router.AddConsumerHandler(
		"websocket-broadcast",
		TopicVerdicts,
		b.pubsub,
		func(msg *message.Message) error {
			rec, err := decodeRecord(msg)
			if err != nil {
				return err
			}
			if rec.Verdict.Suspicious {
				broadcaster.BroadcastAlert(rec)
			}
			return nil
		},
	)
}

// decodeRecord unmarshals a bus message. A malformed message is a
// permanent failure; the error aborts retries quickly because the
// payload will never become valid.
func decodeRecord(msg *message.Message) (dispatch.Record, error) {
	var rec dispatch.Record
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return dispatch.Record{}, fmt.Errorf("alerting: decode record %s: %w", msg.UUID, err)
	}
	return rec, nil
}

// Serve runs the router until the context is canceled. Designed for
// suture supervision.
func (b *Bus) Serve(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running returns a channel that closes once the router is running.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Close stops the router and the underlying pub/sub.
func (b *Bus) Close() error {
	routerErr := b.router.Close()
	pubsubErr := b.pubsub.Close()
	if routerErr != nil {
		return routerErr
	}
	return pubsubErr
}
