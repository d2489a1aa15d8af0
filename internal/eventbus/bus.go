/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus across scheduler
// instances over NATS or Redis.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/events"
)

// Bus is the event bus contract shared by the in-process bus and the bridges.
type Bus interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Publish(eventType events.EventType, payload events.Payload)
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

// Config selects the bridge. NATS wins when both URLs are set; with neither
// the bus stays in process.
type Config struct {
	NATSURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New creates the configured event bus.
func New(cfg Config, nodeID string, logger zerolog.Logger) (Bus, error) {
	switch {
	case cfg.NATSURL != "":
		natsCfg := DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		return NewNATSBus(natsCfg, nodeID, logger)
	case cfg.RedisAddr != "":
		redisCfg := DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		return NewRedisBus(redisCfg, nodeID, logger)
	}
	logger.Info().Msg("no event bus bridge configured, using in-process events")
	return localBus{events.NewBus()}, nil
}

type localBus struct {
	*events.Bus
}

func (localBus) Close() error { return nil }

// message is the envelope carried by every bridge.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("event message without type")
	}
	return &msg, nil
}
