/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/playout"
)

type fakeElection struct {
	leader  atomic.Bool
	ch      chan bool
	stopped atomic.Bool
}

func (e *fakeElection) Start(context.Context) error { return nil }
func (e *fakeElection) Stop() error                 { e.stopped.Store(true); return nil }
func (e *fakeElection) IsLeader() bool              { return e.leader.Load() }
func (e *fakeElection) LeaderCh() <-chan bool       { return e.ch }
func (e *fakeElection) InstanceID() string          { return "node-a" }

func (e *fakeElection) set(leader bool) {
	e.leader.Store(leader)
	e.ch <- leader
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLeaderAwareFollowsLeadership(t *testing.T) {
	builder := newFakeBuilder(playout.OutcomeBuilt, nil)
	svc := New(newFakeStore(1), builder, nil, nil, nil, time.Hour, zerolog.Nop())
	election := &fakeElection{ch: make(chan bool, 1)}
	bus := events.NewBus()
	changes := bus.Subscribe(events.EventLeadershipChanged)

	las := NewLeaderAware(svc, election, bus, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := las.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if las.Running() {
		t.Fatal("follower runs the scheduler")
	}

	election.set(true)
	waitFor(t, "scheduler start", las.Running)
	expectCall(t, builder, playout.ModeContinue)
	if p := expectEvent(t, changes); p["leader"] != true || p.String("instance_id") != "node-a" {
		t.Errorf("leadership event = %v", p)
	}

	election.set(false)
	waitFor(t, "scheduler stop", func() bool { return !las.Running() })
	if p := expectEvent(t, changes); p["leader"] != false {
		t.Errorf("leadership event = %v", p)
	}

	if err := las.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !election.stopped.Load() {
		t.Error("election not stopped")
	}
}
