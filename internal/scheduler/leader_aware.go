/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/events"
)

// Election reports whether this instance may run the scheduler.
type Election interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
	InstanceID() string
}

// LeaderAwareScheduler wraps a scheduler and only runs when this instance is the leader
type LeaderAwareScheduler struct {
	scheduler *Service
	election  Election
	bus       Bus
	logger    zerolog.Logger

	ctx     context.Context
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewLeaderAware creates a leader-aware scheduler wrapper. bus may be nil.
func NewLeaderAware(scheduler *Service, election Election, bus Bus, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		scheduler: scheduler,
		election:  election,
		bus:       bus,
		logger:    logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins monitoring leadership status and manages scheduler lifecycle
func (las *LeaderAwareScheduler) Start(ctx context.Context) error {
	las.ctx = ctx
	las.logger.Info().Str("instance_id", las.election.InstanceID()).Msg("starting leader-aware scheduler")

	if err := las.election.Start(ctx); err != nil {
		return err
	}
	go las.monitorLeadership()
	return nil
}

// Stop stops the scheduler and releases leadership.
func (las *LeaderAwareScheduler) Stop() error {
	las.logger.Info().Msg("stopping leader-aware scheduler")
	las.stopScheduler()
	return las.election.Stop()
}

// monitorLeadership watches for leadership changes and starts/stops scheduler accordingly
func (las *LeaderAwareScheduler) monitorLeadership() {
	leaderCh := las.election.LeaderCh()

	if las.election.IsLeader() {
		las.startScheduler()
	}

	for {
		select {
		case <-las.ctx.Done():
			las.stopScheduler()
			return
		case isLeader := <-leaderCh:
			las.announce(isLeader)
			if isLeader {
				las.logger.Info().Msg("became leader, starting scheduler")
				las.startScheduler()
			} else {
				las.logger.Warn().Msg("lost leadership, stopping scheduler")
				las.stopScheduler()
			}
		}
	}
}

func (las *LeaderAwareScheduler) announce(isLeader bool) {
	if las.bus == nil {
		return
	}
	las.bus.Publish(events.EventLeadershipChanged, events.Payload{
		"instance_id": las.election.InstanceID(),
		"leader":      isLeader,
	})
}

func (las *LeaderAwareScheduler) startScheduler() {
	las.mu.Lock()
	defer las.mu.Unlock()
	if las.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(las.ctx)
	done := make(chan struct{})
	las.cancel = cancel
	las.stopped = done

	go func() {
		defer close(done)
		las.logger.Info().Msg("scheduler started")
		if err := las.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			las.logger.Error().Err(err).Msg("scheduler error")
		}
		las.logger.Info().Msg("scheduler stopped")
	}()
}

// stopScheduler cancels the running scheduler and waits for its current
// build to finish.
func (las *LeaderAwareScheduler) stopScheduler() {
	las.mu.Lock()
	cancel, done := las.cancel, las.stopped
	las.cancel, las.stopped = nil, nil
	las.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the wrapped scheduler loop is active.
func (las *LeaderAwareScheduler) Running() bool {
	las.mu.Lock()
	defer las.mu.Unlock()
	return las.cancel != nil
}

// IsLeader returns whether this instance is the leader
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}
