/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"encoding/json"
	"sync"
)

// EventType enumerates event categories.
type EventType string

const (
	// EventPlayoutBuilt follows every successful build pass.
	EventPlayoutBuilt EventType = "playout.built"
	// EventPlayoutBuildFailed follows a build pass that returned an error.
	EventPlayoutBuildFailed EventType = "playout.build_failed"
	// EventCollectionUpdated asks every playout using the collection to refresh.
	EventCollectionUpdated EventType = "collection.updated"
	// EventScheduleUpdated asks the playouts of a program schedule to refresh.
	EventScheduleUpdated EventType = "schedule.updated"
	// EventLeadershipChanged reports scheduler leadership transitions.
	EventLeadershipChanged EventType = "leadership.changed"
)

// Payload generic event payload.
type Payload map[string]any

// Int reads a numeric field. Payloads that crossed a JSON bridge carry
// float64 numbers.
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// String reads a string field.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
