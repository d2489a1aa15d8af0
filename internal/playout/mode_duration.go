/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

// scheduleDuration plays whole items until the next one would run past the
// block deadline, then handles the rest of the block per the tail mode.
func (s *modeScheduler) scheduleDuration(state builderState, item *models.ProgramScheduleItem, kind Duration, hardStop time.Time) (builderState, []models.PlayoutItem) {
	e := s.enumerators[collection.ForScheduleItem(item)]

	contentKind := models.FillerKindNone
	if item.GuideMode == models.GuideModeFiller {
		contentKind = models.FillerKindTail
	}

	var (
		items         []models.PlayoutItem
		durationUntil *time.Time
		skipped       int
	)
	willFinishInTime := true
	for willFinishInTime && state.currentTime.Before(hardStop) {
		media, ok := e.Current()
		if !ok {
			break
		}

		start := s.startTimeAfter(state, item)
		if state.durationFinish == nil {
			state.durationFinish = timePtr(start.Add(kind.PlayoutDuration))
			durationUntil = state.durationFinish
		}

		d := media.Duration()
		if d > kind.PlayoutDuration {
			s.warn(WarningOverlongItem, media.ID, start,
				"skipping item with duration %s longer than block duration %s", d, kind.PlayoutDuration)
			e.MoveNext()
			skipped++
			if skipped > e.Count() {
				// nothing in the collection fits; the block stays offline
				state.currentTime = *state.durationFinish
				state.durationFinish = nil
				state.items.MoveNext()
				break
			}
			continue
		}
		skipped = 0

		content := newContentItem(media, start, d, state, item, contentKind)
		if durationUntil != nil {
			content.GuideFinish = timePtr(durationUntil.UTC())
		}
		deadline := *state.durationFinish

		chapters := s.chaptersFor(item, media)
		predicted, predictable := s.calculateEndTimeWithFiller(item, start, d, chapters)
		snap := s.snapshot()
		added := s.addFiller(state, item, content, chapters)
		end := maxFinish(added)

		willFinishInTime = start.After(deadline) || !end.After(deadline)
		if willFinishInTime {
			if predictable {
				s.checkPrediction(media.ID, predicted, end)
			}
			items = append(items, added...)
			state.currentTime = end
			state.nextGuideGroup = bumpGuideGroup(state, item)
			e.MoveNext()
			continue
		}

		s.restore(snap)
		if block := end.Sub(start); block > kind.PlayoutDuration {
			s.warn(WarningOverlongBlock, media.ID, start,
				"unable to schedule block of %s which is longer than the block duration %s", block, kind.PlayoutDuration)
		}
		state.durationFinish = nil
		state.items.MoveNext()
	}

	// the block ended exactly at the hard stop
	if state.durationFinish != nil && state.currentTime.Equal(*state.durationFinish) {
		state.durationFinish = nil
		state.items.MoveNext()
	}

	if distinctGuideGroups(items) != 1 {
		state.nextGuideGroup = state.decrementGuideGroup()
	}

	if durationUntil != nil {
		nextStart := *durationUntil
		switch kind.TailMode {
		case models.TailModeFiller:
			state, items = s.addTailFiller(state, item, items, nextStart)
			state, items = s.addFallbackFiller(state, item, items, nextStart)
			state.currentTime = nextStart
		case models.TailModeOffline:
			state, items = s.addFallbackFiller(state, item, items, nextStart)
			state.currentTime = nextStart
		}
	}

	// only the last content item of the block carries the guide finish
	last := -1
	for i := range items {
		if items[i].FillerKind != models.FillerKindNone {
			continue
		}
		if last < 0 || !items[i].Finish.Before(items[last].Finish) {
			last = i
		}
	}
	for i := range items {
		if items[i].FillerKind == models.FillerKindNone && i != last {
			items[i].GuideFinish = nil
		}
	}

	state.nextGuideGroup = state.incrementGuideGroup()
	return state, items
}
