/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package enumerator

import (
	"slices"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/grouping"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/shuffle"
)

// ShuffleInOrder interleaves sub-collections. Each schedule-as-group
// sub-collection keeps its own order, the remaining items form one shuffled
// sub-collection, and every lap spreads them evenly against each other
// (balanced shuffle with per-round shuffled batches).
type ShuffleInOrder struct {
	groups           []collection.Group
	randomStartPoint bool
	itemCount        int
	distinct         int
	rng              *shuffle.Random
	shuffled         []models.MediaItem
	state            State
}

// NewShuffleInOrder creates a ShuffleInOrder enumerator.
func NewShuffleInOrder(groups []collection.Group, state State, randomStartPoint bool) *ShuffleInOrder {
	s := &ShuffleInOrder{groups: groups, randomStartPoint: randomStartPoint}
	ids := make(map[int]struct{})
	for _, g := range groups {
		s.itemCount += len(g.Items)
		for _, item := range g.Items {
			ids[item.ID] = struct{}{}
		}
	}
	s.distinct = len(ids)

	// an index at or past the end continues with the following lap
	s.rng = shuffle.New(state.Seed)
	s.shuffled = s.shuffle()
	s.state = State{Seed: state.Seed}
	for range min(max(int(state.Index), 0), len(s.shuffled)) {
		s.MoveNext()
	}
	return s
}

// ResetState implements Enumerator. The order is only rebuilt when the seed changes.
func (s *ShuffleInOrder) ResetState(state State) {
	if s.state.Seed != state.Seed {
		s.rng = shuffle.New(state.Seed)
		s.shuffled = s.shuffle()
	}
	s.state = State{Seed: state.Seed, Index: normalizeIndex(state.Index, len(s.shuffled))}
}

func (s *ShuffleInOrder) Current() (*models.MediaItem, bool) {
	if len(s.shuffled) == 0 {
		return nil, false
	}
	return &s.shuffled[int(s.state.Index)%len(s.shuffled)], true
}

func (s *ShuffleInOrder) MoveNext() {
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
		s.shuffled = s.shuffle()
		if s.distinct < 2 || len(s.shuffled) == 0 || s.shuffled[0].ID != tail || attempt >= maxReshuffles {
			return
		}
	}
}

func (s *ShuffleInOrder) State() State { return s.state }
func (s *ShuffleInOrder) Count() int   { return len(s.shuffled) }

func (s *ShuffleInOrder) MinimumDuration() (time.Duration, bool) {
	return minimumDuration(s.shuffled)
}

// Peek implements Peeker.
func (s *ShuffleInOrder) Peek(offset int) (*models.MediaItem, bool) {
	if len(s.shuffled) == 0 {
		return nil, false
	}
	clone := *s
	clone.rng = s.rng.Clone()
	for range offset {
		clone.MoveNext()
	}
	return clone.Current()
}

// slot is a position in a filled column; nil marks a spacer.
type slot = *models.MediaItem

type column struct {
	start int
	slots []slot
}

func (s *ShuffleInOrder) shuffle() []models.MediaItem {
	var columns []column
	var loose []slot
	for _, g := range s.groups {
		if g.ScheduleAsGroup {
			ordered := grouping.OrderGroup(g)
			if len(ordered) == 0 {
				continue
			}
			slots := make([]slot, len(ordered))
			for i := range ordered {
				slots[i] = &ordered[i]
			}
			columns = append(columns, column{slots: slots})
			continue
		}
		for i := range g.Items {
			loose = append(loose, &g.Items[i])
		}
	}
	if len(loose) > 0 {
		columns = append(columns, column{slots: shuffle.Shuffle(loose, s.rng)})
	}
	if len(columns) == 0 {
		return nil
	}

	filled := s.fill(columns)

	out := make([]models.MediaItem, 0, s.itemCount)
	rounds := len(filled[0].slots)
	for i := 0; i < rounds; i++ {
		batch := make([]slot, 0, len(filled))
		for _, c := range filled {
			batch = append(batch, c.slots[(c.start+i)%len(c.slots)])
		}
		for _, item := range shuffle.Shuffle(batch, s.rng) {
			if item != nil {
				out = append(out, *item)
			}
		}
	}
	return out
}

// fill pads every column to the longest one, spreading its items evenly
// between spacers.
func (s *ShuffleInOrder) fill(columns []column) []column {
	maxLength := 0
	for _, c := range columns {
		maxLength = max(maxLength, len(c.slots))
	}

	result := make([]column, 0, len(columns))
	for _, c := range columns {
		items := slices.Clone(c.slots)
		spaces := make([]slot, maxLength-len(c.slots))

		smaller, larger := spaces, items
		if len(c.slots) < maxLength-len(c.slots) {
			smaller, larger = items, spaces
		}

		ordered := make([]slot, 0, maxLength)
		for k := len(smaller); k > 0; k-- {
			n := maxLength - len(ordered)

			// optimal run length, jittered by up to 10%
			optimal := float64(n)/float64(k) + (s.rng.Float64()-0.5)/5.0
			r := min(max(int(optimal), 1), maxLength-k+1)

			ordered = append(ordered, smaller[0])
			smaller = smaller[1:]
			for i := 0; i < r-1 && len(larger) > 0; i++ {
				ordered = append(ordered, larger[0])
				larger = larger[1:]
			}
		}
		ordered = append(ordered, smaller...)
		ordered = append(ordered, larger...)

		start := 0
		if s.randomStartPoint && len(ordered) > 1 {
			start = s.rng.IntN(len(ordered) - 1)
		}
		result = append(result, column{start: start, slots: ordered})
	}
	return result
}
