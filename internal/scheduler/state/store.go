/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package state

import (
	"sort"
	"sync"
	"time"
)

// BuildStatus is the latest build attempt of one playout.
type BuildStatus struct {
	PlayoutID           int       `json:"playout_id"`
	RunID               string    `json:"run_id,omitempty"`
	Mode                string    `json:"mode"`
	Outcome             string    `json:"outcome,omitempty"`
	ItemsAdded          int       `json:"items_added"`
	Warnings            int       `json:"warnings"`
	Error               string    `json:"error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	BuiltThrough        time.Time `json:"built_through,omitempty"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
}

// Store keeps in-memory build status for the operations endpoints.
type Store struct {
	mu       sync.RWMutex
	statuses map[int]BuildStatus
	lastTick time.Time
}

// NewStore creates a scheduler state store.
func NewStore() *Store {
	return &Store{statuses: make(map[int]BuildStatus)}
}

// RecordSuccess registers a completed build.
func (s *Store) RecordSuccess(status BuildStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status.Error = ""
	status.ConsecutiveFailures = 0
	status.LastSuccess = status.LastAttempt
	s.statuses[status.PlayoutID] = status
}

// RecordFailure registers a failed build, keeping the last success.
func (s *Store) RecordFailure(playoutID int, mode string, err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.statuses[playoutID]
	s.statuses[playoutID] = BuildStatus{
		PlayoutID:           playoutID,
		Mode:                mode,
		Error:               err.Error(),
		ConsecutiveFailures: prev.ConsecutiveFailures + 1,
		BuiltThrough:        prev.BuiltThrough,
		LastAttempt:         at,
		LastSuccess:         prev.LastSuccess,
	}
}

// Get returns the status of one playout.
func (s *Store) Get(playoutID int) (BuildStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[playoutID]
	return st, ok
}

// Snapshot returns every status ordered by playout id.
func (s *Store) Snapshot() []BuildStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BuildStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayoutID < out[j].PlayoutID })
	return out
}

// MarkTick records a completed scheduler pass.
func (s *Store) MarkTick(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = at
}

// LastTick returns when the scheduler last completed a pass.
func (s *Store) LastTick() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// Prune removes statuses of playouts not attempted since cutoff.
func (s *Store) Prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.statuses {
		if st.LastAttempt.Before(cutoff) {
			delete(s.statuses, id)
		}
	}
}
