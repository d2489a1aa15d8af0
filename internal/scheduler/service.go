/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler keeps every playout built ahead of the wall clock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/locking"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/playout"
	"github.com/friendsincode/grimnir_playout/internal/scheduler/state"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// ErrBusy is returned when another build holds the channel lock.
var ErrBusy = errors.New("channel build in progress")

// PlayoutStore loads and saves playout aggregates.
type PlayoutStore interface {
	ListIDs(ctx context.Context) ([]int, error)
	IDsForSchedule(ctx context.Context, scheduleID int) ([]int, error)
	ChannelID(ctx context.Context, playoutID int) (int, error)
	Load(ctx context.Context, playoutID int) (*models.Playout, error)
	Save(ctx context.Context, p *models.Playout) error
}

// Builder runs one build pass.
type Builder interface {
	Build(ctx context.Context, p *models.Playout, mode playout.Mode) (*playout.BuildResult, error)
}

// Bus carries build and change events.
type Bus interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Publish(eventType events.EventType, payload events.Payload)
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// Invalidator drops cached media of a collection.
type Invalidator interface {
	Invalidate(ctx context.Context, key collection.Key) error
}

// Service orchestrates the rolling playout builds.
type Service struct {
	store       PlayoutStore
	builder     Builder
	locker      locking.Locker
	bus         Bus
	invalidator Invalidator
	status      *state.Store
	interval    time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// New constructs the scheduler service. bus may be nil.
func New(store PlayoutStore, builder Builder, locker locking.Locker, bus Bus, status *state.Store, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	if locker == nil {
		locker = locking.NewLocalLocker()
	}
	if status == nil {
		status = state.NewStore()
	}
	return &Service{
		store:    store,
		builder:  builder,
		locker:   locker,
		bus:      bus,
		status:   status,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// SetInvalidator sets the cache dropped on collection change events.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// Status returns the build status store.
func (s *Service) Status() *state.Store {
	return s.status
}

// Run executes the scheduler loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.bus != nil {
		collections := s.bus.Subscribe(events.EventCollectionUpdated)
		schedules := s.bus.Subscribe(events.EventScheduleUpdated)
		defer s.bus.Unsubscribe(events.EventCollectionUpdated, collections)
		defer s.bus.Unsubscribe(events.EventScheduleUpdated, schedules)

		s.wg.Add(1)
		go s.watchChanges(ctx, collections, schedules)
	}
	defer s.wg.Wait()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler loop started")
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	telemetry.SchedulerTicksTotal.Inc()

	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler failed to list playouts")
		telemetry.SchedulerErrorsTotal.WithLabelValues("", "list_playouts").Inc()
		return
	}
	s.buildAll(ctx, ids, playout.ModeContinue)

	now := s.now()
	s.status.MarkTick(now)
	// playouts that stopped showing up were deleted
	s.status.Prune(now.Add(-10 * s.interval))
}

func (s *Service) buildAll(ctx context.Context, ids []int, mode playout.Mode) {
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		_, err := s.BuildPlayout(ctx, id, mode)
		switch {
		case err == nil:
		case errors.Is(err, ErrBusy):
			s.logger.Debug().Int("playout_id", id).Msg("playout is being built elsewhere, skipping")
		default:
			s.logger.Warn().Err(err).Int("playout_id", id).Str("mode", string(mode)).Msg("playout build failed")
		}
	}
}

// BuildPlayout builds one playout under its channel lock and saves the result.
func (s *Service) BuildPlayout(ctx context.Context, playoutID int, mode playout.Mode) (*playout.BuildResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "BuildPlayout")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"playout_id": playoutID,
		"mode":       string(mode),
	})
	label := fmt.Sprintf("%d", playoutID)

	channelID, err := s.store.ChannelID(ctx, playoutID)
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues(label, "load").Inc()
		return nil, err
	}

	lease, ok, err := s.locker.TryLock(ctx, locking.ChannelKey(channelID))
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues(label, "lock").Inc()
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Int("channel_id", channelID).Msg("failed to release build lock")
		}
	}()

	result, err := s.buildLocked(ctx, playoutID, mode)
	if err != nil {
		telemetry.RecordError(span, err)
		s.status.RecordFailure(playoutID, string(mode), err, s.now())
		s.publish(events.EventPlayoutBuildFailed, events.Payload{
			"playout_id": playoutID,
			"channel_id": channelID,
			"mode":       string(mode),
			"error":      err.Error(),
		})
		return nil, err
	}

	if result.Outcome != playout.OutcomeCanceled {
		s.status.RecordSuccess(state.BuildStatus{
			PlayoutID:    playoutID,
			RunID:        result.RunID.String(),
			Mode:         string(mode),
			Outcome:      string(result.Outcome),
			ItemsAdded:   result.ItemsAdded,
			Warnings:     len(result.Warnings),
			BuiltThrough: result.Finish,
			LastAttempt:  s.now(),
		})
	}
	if result.Outcome == playout.OutcomeBuilt {
		s.publish(events.EventPlayoutBuilt, events.Payload{
			"playout_id":  playoutID,
			"channel_id":  channelID,
			"run_id":      result.RunID.String(),
			"mode":        string(mode),
			"items_added": result.ItemsAdded,
			"warnings":    len(result.Warnings),
			"finish":      result.Finish.UTC().Format(time.RFC3339),
		})
	}
	return result, nil
}

func (s *Service) buildLocked(ctx context.Context, playoutID int, mode playout.Mode) (*playout.BuildResult, error) {
	label := fmt.Sprintf("%d", playoutID)

	p, err := s.store.Load(ctx, playoutID)
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues(label, "load").Inc()
		return nil, err
	}

	result, err := s.builder.Build(ctx, p, mode)
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues(label, "build").Inc()
		return nil, err
	}
	if result.Outcome != playout.OutcomeBuilt {
		s.logger.Debug().
			Int("playout_id", playoutID).
			Str("outcome", string(result.Outcome)).
			Msg("playout left unchanged")
		return result, nil
	}

	if err := s.store.Save(ctx, p); err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues(label, "save").Inc()
		return nil, err
	}

	s.logger.Info().
		Int("playout_id", playoutID).
		Str("run_id", result.RunID.String()).
		Str("mode", string(mode)).
		Int("items_added", result.ItemsAdded).
		Int("warnings", len(result.Warnings)).
		Time("finish", result.Finish).
		Msg("playout built")
	return result, nil
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, payload)
}

// watchChanges refreshes playouts whose content or schedules changed.
func (s *Service) watchChanges(ctx context.Context, collections, schedules events.Subscriber) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-collections:
			if !ok {
				return
			}
			s.handleCollectionUpdated(ctx, payload)
		case payload, ok := <-schedules:
			if !ok {
				return
			}
			s.handleScheduleUpdated(ctx, payload)
		}
	}
}

func (s *Service) handleCollectionUpdated(ctx context.Context, payload events.Payload) {
	if s.invalidator != nil {
		if id, ok := payload.Int("collection_id"); ok {
			key := collection.Key{Kind: models.CollectionKind(payload.String("collection_kind")), ID: id}
			if key.Kind == "" {
				key.Kind = models.CollectionKindCollection
			}
			if err := s.invalidator.Invalidate(ctx, key); err != nil {
				s.logger.Warn().Err(err).Str("collection", key.String()).Msg("failed to invalidate cached collection")
			}
		}
	}

	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues("", "list_playouts").Inc()
		s.logger.Error().Err(err).Msg("failed to list playouts for refresh")
		return
	}
	s.logger.Info().Int("playouts", len(ids)).Msg("collection updated, refreshing playouts")
	s.buildAll(ctx, ids, playout.ModeRefresh)
}

func (s *Service) handleScheduleUpdated(ctx context.Context, payload events.Payload) {
	scheduleID, ok := payload.Int("schedule_id")
	if !ok {
		s.logger.Warn().Interface("payload", payload).Msg("schedule update without schedule_id")
		return
	}
	ids, err := s.store.IDsForSchedule(ctx, scheduleID)
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues("", "list_playouts").Inc()
		s.logger.Error().Err(err).Int("schedule_id", scheduleID).Msg("failed to list playouts for refresh")
		return
	}
	s.logger.Info().Int("schedule_id", scheduleID).Int("playouts", len(ids)).Msg("schedule updated, refreshing playouts")
	s.buildAll(ctx, ids, playout.ModeRefresh)
}
