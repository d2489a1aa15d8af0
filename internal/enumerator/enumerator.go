/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package enumerator implements the resumable, wrap-around iterators that
// decide which media item a schedule item plays next. Every enumerator's
// position is fully described by a State, which is persisted between builds.
package enumerator

import (
	"errors"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

// ErrUnsupportedPeek is returned when peeking an enumerator that cannot look ahead.
var ErrUnsupportedPeek = errors.New("enumerator does not support peek")

// State is the persisted position of an enumerator.
type State struct {
	Seed  int32
	Index int32
}

// Enumerator iterates a media pool forever, wrapping at the end of each lap.
// An empty pool never yields a current item and never fails to advance.
type Enumerator interface {
	Current() (*models.MediaItem, bool)
	MoveNext()
	State() State
	ResetState(State)
	Count() int
	MinimumDuration() (time.Duration, bool)
}

// Peeker is implemented by enumerators that can look ahead without advancing.
type Peeker interface {
	Peek(offset int) (*models.MediaItem, bool)
}

// GuideAware is implemented by enumerators whose items may be hidden from
// the program guide.
type GuideAware interface {
	CurrentIncludeInProgramGuide() (include bool, ok bool)
}

// GroupSizer reports the size of the multi-part group an item belongs to.
type GroupSizer interface {
	GroupSizeFor(mediaItemID int) int
}

// Peek looks offset items ahead of e.
func Peek(e Enumerator, offset int) (*models.MediaItem, bool, error) {
	p, ok := e.(Peeker)
	if !ok {
		return nil, false, ErrUnsupportedPeek
	}
	item, found := p.Peek(offset)
	return item, found, nil
}

func minimumDuration(items []models.MediaItem) (time.Duration, bool) {
	var (
		shortest time.Duration
		found    bool
	)
	for i := range items {
		d := items[i].Duration()
		if d <= 0 {
			continue
		}
		if !found || d < shortest {
			shortest = d
			found = true
		}
	}
	return shortest, found
}

func normalizeIndex(index int32, count int) int32 {
	if count == 0 || index < 0 {
		return 0
	}
	return index % int32(count)
}
