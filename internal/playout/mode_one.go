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

// scheduleOne plays a single item and always advances to the next rule.
func (s *modeScheduler) scheduleOne(state builderState, item, next *models.ProgramScheduleItem, hardStop time.Time) (builderState, []models.PlayoutItem) {
	e := s.enumerators[collection.ForScheduleItem(item)]
	media, ok := e.Current()
	if !ok {
		return state, nil
	}

	start := s.startTimeAfter(state, item)
	if !start.Before(hardStop) {
		state.currentTime = hardStop
		return state, nil
	}

	d := media.Duration()
	content := newContentItem(media, start, d, state, item, guideFillerKind(item, e))
	chapters := s.chaptersFor(item, media)
	predicted, predictable := s.calculateEndTimeWithFiller(item, start, d, chapters)
	items := s.addFiller(state, item, content, chapters)
	if predictable {
		s.checkPrediction(media.ID, predicted, maxFinish(items))
	}

	state.currentTime = maxFinish(items)
	state.items.MoveNext()
	e.MoveNext()

	nextStart := s.fillerStartTimeAfter(state, next, hardStop)
	state, items = s.addTailFiller(state, item, items, nextStart)
	state, items = s.addFallbackFiller(state, item, items, nextStart)

	state.nextGuideGroup = state.incrementGuideGroup()
	return state, items
}
