/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package enumerator

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/grouping"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/shuffle"
)

// maxReshuffles bounds the search for a lap whose head differs from the
// previous lap's tail.
const maxReshuffles = 100

// Shuffled plays a full permutation of grouped items per lap. Groups stay
// contiguous. A new lap reshuffles with a fresh seed and never starts with
// the item that ended the previous lap when at least two distinct items exist.
type Shuffled struct {
	groups    []grouping.GroupedMediaItem
	itemCount int
	distinct  int
	rng       *shuffle.Random
	shuffled  []models.MediaItem
	state     State
}

// NewShuffled creates a Shuffled enumerator.
func NewShuffled(groups []grouping.GroupedMediaItem, state State) *Shuffled {
	s := &Shuffled{groups: groups}
	ids := make(map[int]struct{})
	for _, g := range groups {
		s.itemCount += g.Len()
		ids[g.First.ID] = struct{}{}
		for _, a := range g.Additional {
			ids[a.ID] = struct{}{}
		}
	}
	s.distinct = len(ids)
	s.ResetState(state)
	return s
}

// ResetState implements Enumerator. An index at or past the end replays
// the lap and moves on to the one that follows it.
func (s *Shuffled) ResetState(state State) {
	s.rng = shuffle.New(state.Seed)
	s.shuffled = grouping.Flatten(shuffle.Shuffle(s.groups, s.rng))
	s.state = State{Seed: state.Seed}
	for range min(max(int(state.Index), 0), len(s.shuffled)) {
		s.MoveNext()
	}
}

func (s *Shuffled) Current() (*models.MediaItem, bool) {
	if len(s.shuffled) == 0 {
		return nil, false
	}
	return &s.shuffled[s.state.Index], true
}

func (s *Shuffled) MoveNext() {
	if len(s.shuffled) == 0 {
		return
	}
	if int(s.state.Index)+1 < len(s.shuffled) {
		s.state.Index++
		return
	}

	tail := s.shuffled[s.state.Index].ID
	s.state.Index = 0
	for attempt := 0; ; attempt++ {
		s.state.Seed = s.rng.Next()
		s.rng = shuffle.New(s.state.Seed)
		s.shuffled = grouping.Flatten(shuffle.Shuffle(s.groups, s.rng))
		if s.distinct < 2 || s.shuffled[0].ID != tail || attempt >= maxReshuffles {
			return
		}
	}
}

func (s *Shuffled) State() State { return s.state }
func (s *Shuffled) Count() int   { return s.itemCount }

func (s *Shuffled) MinimumDuration() (time.Duration, bool) { return minimumDuration(s.shuffled) }

// Peek implements Peeker. Looking past the end of the lap simulates the
// next reshuffle on a cloned generator.
func (s *Shuffled) Peek(offset int) (*models.MediaItem, bool) {
	if len(s.shuffled) == 0 {
		return nil, false
	}
	if i := int(s.state.Index) + offset; i < len(s.shuffled) {
		return &s.shuffled[i], true
	}
	clone := *s
	clone.rng = s.rng.Clone()
	for range offset {
		clone.MoveNext()
	}
	return clone.Current()
}
