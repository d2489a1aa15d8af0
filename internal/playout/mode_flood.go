/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"math"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

var farFuture = time.Unix(math.MaxInt32, 0).UTC()

// scheduleFlood plays items until the next one, filler included, would still
// be running when the next fixed-start rule begins.
func (s *modeScheduler) scheduleFlood(state builderState, item, next *models.ProgramScheduleItem, hardStop time.Time) (builderState, []models.PlayoutItem) {
	e := s.enumerators[collection.ForScheduleItem(item)]

	var items []models.PlayoutItem
	scheduledNone := false
	willFinishInTime := true
	for willFinishInTime && state.currentTime.Before(hardStop) {
		media, ok := e.Current()
		if !ok {
			break
		}

		start := s.startTimeAfter(state, item)
		if !start.Before(hardStop) {
			scheduledNone = len(items) == 0
			state.currentTime = hardStop
			break
		}

		// a lone fixed flood rule never blocks itself
		nextStart := farFuture
		if next.ID != item.ID && next.StartType == models.StartTypeFixed {
			nextStart = fixedStartAfter(state.currentTime, next, s.loc)
		}

		d := media.Duration()
		if d == 0 && media.Kind == models.MediaKindRemoteStream {
			if !start.Equal(nextStart) && nextStart.Before(hardStop) {
				d = nextStart.Sub(start)
			} else {
				d = hardStop.Sub(start)
			}
		}

		content := newContentItem(media, start, d, state, item, guideFillerKind(item, e))
		chapters := s.chaptersFor(item, media)
		predicted, predictable := s.calculateEndTimeWithFiller(item, start, d, chapters)
		snap := s.snapshot()
		added := s.addFiller(state, item, content, chapters)
		end := maxFinish(added)

		willFinishInTime = nextStart.Before(start) || !nextStart.Before(end)
		if !willFinishInTime {
			s.restore(snap)
			break
		}

		if predictable {
			s.checkPrediction(media.ID, predicted, end)
		}
		items = append(items, added...)
		state.currentTime = end
		state.inFlood = true
		state.nextGuideGroup = bumpGuideGroup(state, item)
		e.MoveNext()
	}

	state.inFlood = len(items) != 0 && !state.currentTime.Before(hardStop)
	if distinctGuideGroups(items) != 1 {
		state.nextGuideGroup = state.decrementGuideGroup()
	}

	// stay on this rule while the flood continues past the hard stop
	if !state.inFlood && !scheduledNone {
		s.logger.Debug().Int("schedule_item_id", item.ID).Msg("advancing to next schedule item after flood")
		state.items.MoveNext()
	}

	peekStart := s.fillerStartTimeAfter(state, next, hardStop)
	state, items = s.addTailFiller(state, item, items, peekStart)
	state, items = s.addFallbackFiller(state, item, items, peekStart)

	state.nextGuideGroup = state.incrementGuideGroup()
	return state, items
}
