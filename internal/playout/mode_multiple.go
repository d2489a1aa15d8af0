/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/enumerator"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

type playAllCounter interface {
	CurrentPlayAllCount() (int, bool)
}

// scheduleMultiple plays kind.Count items before moving on. The remaining
// count survives across builds in the anchor.
func (s *modeScheduler) scheduleMultiple(state builderState, item *models.ProgramScheduleItem, kind Multiple, next *models.ProgramScheduleItem, hardStop time.Time) (builderState, []models.PlayoutItem) {
	firstStart := s.startTimeAfter(state, item)
	if !firstStart.Before(hardStop) {
		state.currentTime = hardStop
		return state, nil
	}

	key := collection.ForScheduleItem(item)
	e := s.enumerators[key]

	state.currentTime = firstStart
	remaining := kind.Count
	if state.multipleRemaining != nil {
		remaining = *state.multipleRemaining
	}
	if remaining == 0 {
		remaining = s.resolveMultipleCount(kind.Mode, key, e)
	}

	var items []models.PlayoutItem
	for remaining > 0 && state.currentTime.Before(hardStop) {
		media, ok := e.Current()
		if !ok {
			break
		}
		// a run in progress never waits for a fixed start
		start := state.currentTime
		d := media.Duration()
		content := newContentItem(media, start, d, state, item, guideFillerKind(item, e))
		chapters := s.chaptersFor(item, media)
		predicted, predictable := s.calculateEndTimeWithFiller(item, start, d, chapters)
		added := s.addFiller(state, item, content, chapters)
		if predictable {
			s.checkPrediction(media.ID, predicted, maxFinish(added))
		}
		items = append(items, added...)

		state.currentTime = maxFinish(items)
		remaining--
		state.nextGuideGroup = bumpGuideGroup(state, item)
		e.MoveNext()
	}
	state.multipleRemaining = intPtr(remaining)

	if remaining == 0 {
		s.logger.Debug().Int("schedule_item_id", item.ID).Msg("advancing to next schedule item after multiple")
		state.multipleRemaining = nil
		if distinctGuideGroups(items) != 1 {
			state.nextGuideGroup = state.decrementGuideGroup()
		}
		state.items.MoveNext()
	}

	nextStart := s.fillerStartTimeAfter(state, next, hardStop)
	state, items = s.addTailFiller(state, item, items, nextStart)
	state, items = s.addFallbackFiller(state, item, items, nextStart)

	state.nextGuideGroup = state.incrementGuideGroup()
	return state, items
}

// resolveMultipleCount decides how many items a zero count plays. Plain
// count mode plays the whole collection.
func (s *modeScheduler) resolveMultipleCount(mode models.MultipleMode, key collection.Key, e enumerator.Enumerator) int {
	switch mode {
	case "", models.MultipleModeCount, models.MultipleModeCollectionSize:
		return s.counts[key]
	case models.MultipleModePlaylistItemSize:
		if p, ok := e.(playAllCounter); ok {
			if n, ok := p.CurrentPlayAllCount(); ok {
				return n
			}
		}
	case models.MultipleModeMultiEpisodeGroupSize:
		if g, ok := e.(enumerator.GroupSizer); ok {
			if current, ok := e.Current(); ok {
				return g.GroupSizeFor(current.ID)
			}
		}
	}
	return 0
}
