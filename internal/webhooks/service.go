/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks forwards playout build events to HTTP endpoints.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// EventTest is sent by TestWebhook.
const EventTest = "test"

var deliveredEvents = []events.EventType{
	events.EventPlayoutBuilt,
	events.EventPlayoutBuildFailed,
}

// WebhookPayload is the payload sent to webhook endpoints.
type WebhookPayload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	PlayoutID int            `json:"playout_id"`
	ChannelID int            `json:"channel_id"`
	Build     events.Payload `json:"build,omitempty"`
}

// Bus is the subset of the event bus the service listens on.
type Bus interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// Service handles webhook delivery.
type Service struct {
	db     *gorm.DB
	bus    Bus
	logger zerolog.Logger
	client *http.Client
	gate   func() bool

	wg sync.WaitGroup
}

// NewService creates a new webhook service.
func NewService(db *gorm.DB, bus Bus, timeout time.Duration, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// SetGate restricts delivery to times when fn reports true. With a shared
// event bus every instance sees every build, so only the scheduling
// instance should deliver.
func (s *Service) SetGate(fn func() bool) {
	s.gate = fn
}

// Start subscribes to build events and delivers them until ctx is done.
// It returns once subscribed; Wait blocks until delivery has drained.
func (s *Service) Start(ctx context.Context) {
	subs := make([]events.Subscriber, len(deliveredEvents))
	for i, et := range deliveredEvents {
		subs[i] = s.bus.Subscribe(et)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			for i, et := range deliveredEvents {
				s.bus.Unsubscribe(et, subs[i])
			}
		}()

		s.logger.Info().Msg("webhook service started")
		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("webhook service stopping")
				return
			case payload := <-subs[0]:
				s.fire(ctx, string(deliveredEvents[0]), payload)
			case payload := <-subs[1]:
				s.fire(ctx, string(deliveredEvents[1]), payload)
			}
		}
	}()
}

// Wait blocks until the event loop and in-flight deliveries finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// fire sends the event to every matching active target.
func (s *Service) fire(ctx context.Context, eventType string, payload events.Payload) {
	if s.gate != nil && !s.gate() {
		return
	}
	playoutID, _ := payload.Int("playout_id")
	channelID, _ := payload.Int("channel_id")

	targets, err := s.targets(ctx, channelID, eventType)
	if err != nil {
		s.logger.Error().Err(err).Int("channel_id", channelID).Msg("failed to fetch webhooks")
		return
	}

	body := WebhookPayload{
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		PlayoutID: playoutID,
		ChannelID: channelID,
		Build:     payload,
	}
	for _, target := range targets {
		s.wg.Add(1)
		go func(target models.WebhookTarget) {
			defer s.wg.Done()
			s.deliver(context.WithoutCancel(ctx), target, body)
		}(target)
	}
}

func (s *Service) targets(ctx context.Context, channelID int, eventType string) ([]models.WebhookTarget, error) {
	var all []models.WebhookTarget
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("channel_id IS NULL OR channel_id = ?", channelID).
		Find(&all).Error
	if err != nil {
		return nil, err
	}
	matched := all[:0]
	for _, t := range all {
		if handlesEvent(t, eventType) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// handlesEvent checks if a webhook is subscribed to an event type.
func handlesEvent(webhook models.WebhookTarget, eventType string) bool {
	if webhook.Events == "" {
		return true
	}
	for _, e := range strings.Split(webhook.Events, ",") {
		if strings.TrimSpace(e) == eventType {
			return true
		}
	}
	return false
}

// deliver sends a single webhook request and logs the attempt.
func (s *Service) deliver(ctx context.Context, target models.WebhookTarget, payload WebhookPayload) {
	status, err := s.post(ctx, target, payload)

	result := "ok"
	entry := models.WebhookLog{
		TargetID:   target.ID,
		Event:      payload.Event,
		PlayoutID:  payload.PlayoutID,
		StatusCode: status,
	}
	switch {
	case err != nil:
		result = "error"
		entry.Error = err.Error()
		s.logger.Error().Err(err).Int("webhook", target.ID).Str("url", target.URL).Msg("webhook delivery failed")
	case status < 200 || status >= 300:
		result = "rejected"
		s.logger.Warn().Int("webhook", target.ID).Str("event", payload.Event).Int("status", status).Msg("webhook returned error status")
	default:
		s.logger.Debug().Int("webhook", target.ID).Str("event", payload.Event).Int("status", status).Msg("webhook delivered")
	}
	telemetry.WebhookDeliveriesTotal.WithLabelValues(payload.Event, result).Inc()

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to log webhook delivery")
	}
}

func (s *Service) post(ctx context.Context, target models.WebhookTarget, payload WebhookPayload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Grimnir-Playout-Webhook/1.0")
	req.Header.Set("X-Grimnir-Event", payload.Event)
	req.Header.Set("X-Grimnir-Timestamp", fmt.Sprintf("%d", payload.Timestamp.Unix()))
	if target.Secret != "" {
		req.Header.Set("X-Grimnir-Signature", Sign(body, target.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Sign creates the HMAC-SHA256 signature header value for body.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// TestWebhook sends a test payload to a webhook and reports failure.
func (s *Service) TestWebhook(ctx context.Context, target models.WebhookTarget) error {
	status, err := s.post(ctx, target, WebhookPayload{
		Event:     EventTest,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("webhook returned status %d", status)
	}
	return nil
}
