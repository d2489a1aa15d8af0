/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package enumerator

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/grouping"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

// list walks a fixed order with simple wrap-around.
type list struct {
	items      []models.MediaItem
	state      State
	groupSizes map[int]int
}

func newList(items []models.MediaItem, state State) list {
	return list{
		items: items,
		state: State{Seed: state.Seed, Index: normalizeIndex(state.Index, len(items))},
	}
}

func (l *list) Current() (*models.MediaItem, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	return &l.items[l.state.Index], true
}

func (l *list) MoveNext() {
	if len(l.items) == 0 {
		return
	}
	l.state.Index = (l.state.Index + 1) % int32(len(l.items))
}

func (l *list) State() State { return l.state }

func (l *list) ResetState(state State) {
	l.state = State{Seed: state.Seed, Index: normalizeIndex(state.Index, len(l.items))}
}

func (l *list) Count() int { return len(l.items) }

func (l *list) MinimumDuration() (time.Duration, bool) { return minimumDuration(l.items) }

// GroupSizeFor implements GroupSizer. Items outside any known group count as one.
func (l *list) GroupSizeFor(mediaItemID int) int {
	if n, ok := l.groupSizes[mediaItemID]; ok {
		return n
	}
	return 1
}

// Sorted plays items in a fixed sort order.
type Sorted struct {
	list
}

// NewChronological orders items by release date, season and episode.
func NewChronological(items []models.MediaItem, state State) *Sorted {
	return &Sorted{list: newList(grouping.SortedChronologically(items), state)}
}

// NewSeasonEpisode orders items by season and episode.
func NewSeasonEpisode(items []models.MediaItem, state State) *Sorted {
	return &Sorted{list: newList(grouping.SortedBySeasonEpisode(items), state)}
}

// WithGroups records multi-part group sizes for GroupSizeFor.
func (s *Sorted) WithGroups(groups []grouping.GroupedMediaItem) *Sorted {
	s.groupSizes = make(map[int]int)
	for _, g := range groups {
		n := g.Len()
		s.groupSizes[g.First.ID] = n
		for _, a := range g.Additional {
			s.groupSizes[a.ID] = n
		}
	}
	return s
}

// Peek implements Peeker.
func (s *Sorted) Peek(offset int) (*models.MediaItem, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	i := (int(s.state.Index) + offset) % len(s.items)
	return &s.items[i], true
}

// CustomOrder plays items in an externally assigned order. It cannot peek.
type CustomOrder struct {
	list
}

// NewCustomOrder orders items by their custom index.
func NewCustomOrder(items []models.MediaItem, order map[int]int, state State) *CustomOrder {
	sorted := make([]models.MediaItem, len(items))
	copy(sorted, items)
	collection.SortByCustomOrder(sorted, order)
	return &CustomOrder{list: newList(sorted, state)}
}

// Latest always plays the chronologically newest item. The index only
// counts how many times it has been played.
type Latest struct {
	list
}

// NewLatest creates a Latest enumerator.
func NewLatest(items []models.MediaItem, state State) *Latest {
	return &Latest{list: newList(grouping.SortedChronologically(items), state)}
}

// Current implements Enumerator.
func (l *Latest) Current() (*models.MediaItem, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	return &l.items[len(l.items)-1], true
}

// Peek implements Peeker.
func (l *Latest) Peek(int) (*models.MediaItem, bool) {
	return l.Current()
}

// SingleItem repeats one item.
type SingleItem struct {
	item  models.MediaItem
	state State
}

// NewSingleItem creates a SingleItem enumerator.
func NewSingleItem(item models.MediaItem, seed int32) *SingleItem {
	return &SingleItem{item: item, state: State{Seed: seed}}
}

func (s *SingleItem) Current() (*models.MediaItem, bool) { return &s.item, true }
func (s *SingleItem) MoveNext()                          {}
func (s *SingleItem) State() State                       { return s.state }
func (s *SingleItem) ResetState(state State)             { s.state = State{Seed: state.Seed} }
func (s *SingleItem) Count() int                         { return 1 }

func (s *SingleItem) MinimumDuration() (time.Duration, bool) {
	return minimumDuration([]models.MediaItem{s.item})
}

// Peek implements Peeker.
func (s *SingleItem) Peek(int) (*models.MediaItem, bool) { return &s.item, true }
