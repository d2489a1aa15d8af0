/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "grimnir.playout.events",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus delivers events locally and mirrors them to every other instance
// through NATS core pub/sub.
type NATSBus struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	local  *events.Bus
	prefix string
	nodeID string
	logger zerolog.Logger

	closeOnce sync.Once
}

// NewNATSBus connects to NATS. Unlike the Redis bridge it does not fall back
// to in-process delivery when the server is unreachable at startup.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	logger = logger.With().Str("component", "eventbus_nats").Logger()
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultNATSConfig().SubjectPrefix
	}

	opts := []nats.Option{
		nats.Name("grimnir-playout-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("reconnected to NATS")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}

	nb := &NATSBus{
		conn:   conn,
		local:  events.NewBus(),
		prefix: cfg.SubjectPrefix,
		nodeID: nodeID,
		logger: logger,
	}

	nb.sub, err = conn.Subscribe(cfg.SubjectPrefix+".>", nb.receive)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.SubjectPrefix, err)
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Str("node_id", nodeID).Msg("NATS event bus initialized")
	return nb, nil
}

func (nb *NATSBus) subject(eventType events.EventType) string {
	return nb.prefix + "." + strings.ReplaceAll(string(eventType), " ", "_")
}

func (nb *NATSBus) receive(m *nats.Msg) {
	msg, err := unmarshalMessage(m.Data)
	if err != nil {
		nb.logger.Error().Err(err).Str("subject", m.Subject).Msg("failed to unmarshal NATS message")
		return
	}
	if msg.NodeID == nb.nodeID {
		return
	}
	telemetry.EventBusMessagesTotal.WithLabelValues("in", string(msg.EventType)).Inc()
	nb.local.Publish(msg.EventType, msg.Payload)

	nb.logger.Debug().
		Str("event_type", string(msg.EventType)).
		Str("source_node", msg.NodeID).
		Msg("delivered NATS event to local subscribers")
}

// Subscribe registers a subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Publish delivers payload locally and to the other instances.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}
	if err := nb.conn.Publish(nb.subject(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
		return
	}
	telemetry.EventBusMessagesTotal.WithLabelValues("out", string(eventType)).Inc()
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Close drains the subscription and closes the connection.
func (nb *NATSBus) Close() error {
	var err error
	nb.closeOnce.Do(func() {
		if drainErr := nb.conn.Drain(); drainErr != nil {
			err = drainErr
			nb.conn.Close()
		}
		nb.logger.Info().Msg("NATS event bus closed")
	})
	return err
}
