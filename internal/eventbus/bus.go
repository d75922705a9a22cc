// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package eventbus carries the archiving control-plane events
// (ComputeMetaInfo, MetaInfoRequested, MetaInfoFinished, StartArchivingPV,
// StartedArchivingPV) between the engine and its collaborators. The
// default transport is an in-process Watermill gochannel Pub/Sub; a NATS
// JetStream transport is available for multi-process/multi-appliance
// deployments, selected by EventBusConfig.Backend.
package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/metrics"
)

// Handler processes one decoded Event. Returning an error nacks the
// underlying message so the transport can redeliver it.
type Handler func(ctx context.Context, event Event) error

// Bus publishes and subscribes archiving control-plane events over a
// Watermill Pub/Sub, hiding the gochannel/NATS transport choice from
// callers.
type Bus struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter
}

// GoChannelConfig parameterizes the in-process transport.
type GoChannelConfig struct {
	OutputChannelBuffer int64
}

// NewGoChannelBus constructs a Bus backed by an in-process Watermill
// gochannel Pub/Sub, the default transport for a single appliance process.
func NewGoChannelBus(cfg GoChannelConfig) *Bus {
	logger := watermill.NewStdLogger(false, false)
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.OutputChannelBuffer,
	}, logger)
	return &Bus{pub: ps, sub: ps, logger: logger}
}

// NATSConfig parameterizes the JetStream transport, used when multiple
// appliance processes need to share control-plane events across a cluster
// deployment.
type NATSConfig struct {
	URL              string
	StreamName       string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	MaxReconnects    int
	ReconnectWait    time.Duration
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration
}

// NewNATSBus constructs a Bus backed by NATS JetStream.
func NewNATSBus(cfg NATSConfig) (*Bus, error) {
	logger := watermill.NewStdLogger(false, false)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("eventbus: NATS connection lost")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("eventbus: NATS reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: cfg.StreamName == "",
			TrackMsgId:    true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("eventbus: create NATS publisher: %w", err)
	}

	subOpts := []natsgo.SubOpt{natsgo.DeliverNew()}
	autoProvision := cfg.StreamName == ""
	if cfg.StreamName != "" {
		subOpts = append(subOpts, natsgo.BindStream(cfg.StreamName))
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision:    autoProvision,
			DurablePrefix:    cfg.DurableName,
			SubscribeOptions: subOpts,
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("eventbus: create NATS subscriber: %w", err)
	}

	return &Bus{pub: pub, sub: sub, logger: logger}, nil
}

// Publish serializes and publishes an event to its own topic.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := Marshal(event)
	if err != nil {
		metrics.EventBusEventsHandled.WithLabelValues(event.Topic(), "marshal_error").Inc()
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pub.Publish(event.Topic(), msg); err != nil {
		metrics.EventBusEventsHandled.WithLabelValues(event.Topic(), "publish_error").Inc()
		return fmt.Errorf("eventbus: publish %s: %w", event.Topic(), err)
	}
	metrics.EventBusEventsHandled.WithLabelValues(event.Topic(), "published").Inc()
	return nil
}

// Subscribe registers handler for every message on topic until ctx is
// canceled. Handler errors nack the message; success acks it. Panics in
// handler are recovered and logged so one bad event cannot take down the
// dispatch loop.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("eventbus: subscribe to %s: %w", topic, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b.dispatch(ctx, topic, msg, handler)
			}
		}
	}()
	return nil
}

func (b *Bus) dispatch(ctx context.Context, topic string, msg *message.Message, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("topic", topic).Msg("eventbus: handler panicked")
			msg.Nack()
			metrics.EventBusEventsHandled.WithLabelValues(topic, "handler_panic").Inc()
		}
	}()

	event, err := unmarshalByTopic(topic, msg.Payload)
	if err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("eventbus: failed to decode event")
		msg.Nack()
		metrics.EventBusEventsHandled.WithLabelValues(topic, "decode_error").Inc()
		return
	}

	if err := handler(ctx, event); err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("eventbus: handler returned error")
		msg.Nack()
		metrics.EventBusEventsHandled.WithLabelValues(topic, "handler_error").Inc()
		return
	}

	msg.Ack()
	metrics.EventBusEventsHandled.WithLabelValues(topic, "handled").Inc()
}

// Close releases the underlying publisher and subscriber.
func (b *Bus) Close() error {
	pubErr := b.pub.Close()
	subErr := b.sub.Close()
	if pubErr != nil {
		return pubErr
	}
	return subErr
}
