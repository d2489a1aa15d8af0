/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/enumerator"
	"github.com/friendsincode/grimnir_playout/internal/expression"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// predictionTolerance is how far a predicted end time may drift from the
// scheduled one before it is reported.
const predictionTolerance = time.Second

// modeScheduler runs the per-mode state machines for one build range. It
// owns the enumerators of every collection the schedule references.
type modeScheduler struct {
	logger      zerolog.Logger
	loc         *time.Location
	enumerators map[collection.Key]enumerator.Enumerator
	// counts is the number of playable items behind each key.
	counts   map[collection.Key]int
	warnings []Warning
	// badExpressions holds presets whose chapter expression already failed.
	badExpressions map[int]struct{}
}

func newModeScheduler(enumerators map[collection.Key]enumerator.Enumerator, counts map[collection.Key]int, loc *time.Location, logger zerolog.Logger) *modeScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &modeScheduler{
		logger:         logger,
		loc:            loc,
		enumerators:    enumerators,
		counts:         counts,
		badExpressions: make(map[int]struct{}),
	}
}

// schedule dispatches item to the state machine for its kind.
func (s *modeScheduler) schedule(state builderState, item, next *models.ProgramScheduleItem, hardStop time.Time) (builderState, []models.PlayoutItem, error) {
	kind, err := KindOf(item)
	if err != nil {
		return state, nil, err
	}
	switch k := kind.(type) {
	case One:
		st, items := s.scheduleOne(state, item, next, hardStop)
		return st, items, nil
	case Multiple:
		st, items := s.scheduleMultiple(state, item, k, next, hardStop)
		return st, items, nil
	case Duration:
		st, items := s.scheduleDuration(state, item, k, hardStop)
		return st, items, nil
	case Flood:
		st, items := s.scheduleFlood(state, item, next, hardStop)
		return st, items, nil
	}
	return state, nil, invariantf("unhandled item kind %T", kind)
}

func (s *modeScheduler) warn(kind WarningKind, mediaItemID int, at time.Time, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.warnings = append(s.warnings, Warning{Kind: kind, MediaItemID: mediaItemID, At: at, Message: msg})
	telemetry.PlayoutWarningsTotal.WithLabelValues(string(kind)).Inc()
	s.logger.Warn().
		Str("kind", string(kind)).
		Int("media_item_id", mediaItemID).
		Time("at", at).
		Msg(msg)
}

func (s *modeScheduler) startTimeAfter(state builderState, item *models.ProgramScheduleItem) time.Time {
	return startTimeAfter(state, item, s.loc)
}

func (s *modeScheduler) fillerStartTimeAfter(state builderState, item *models.ProgramScheduleItem, hardStop time.Time) time.Time {
	return fillerStartTimeAfter(state, item, hardStop, s.loc)
}

// snapshot captures every enumerator position so a rejected item can be undone.
func (s *modeScheduler) snapshot() map[collection.Key]enumerator.State {
	out := make(map[collection.Key]enumerator.State, len(s.enumerators))
	for k, e := range s.enumerators {
		out[k] = e.State()
	}
	return out
}

func (s *modeScheduler) restore(snap map[collection.Key]enumerator.State) {
	for k, e := range s.enumerators {
		if st, ok := snap[k]; ok && e.State() != st {
			e.ResetState(st)
		}
	}
}

// checkPrediction reports filler end times that the estimate got wrong.
func (s *modeScheduler) checkPrediction(mediaItemID int, predicted, actual time.Time) {
	diff := actual.Sub(predicted)
	if diff < 0 {
		diff = -diff
	}
	if diff <= predictionTolerance {
		return
	}
	telemetry.FillerPredictionMismatches.Inc()
	s.warn(WarningPredictionMiss, mediaItemID, predicted,
		"filler prediction ended at %s but scheduled end is %s", predicted.Format(time.RFC3339), actual.Format(time.RFC3339))
}

// guideFillerKind is the filler kind content gets when it should stay out of
// the program guide.
func guideFillerKind(item *models.ProgramScheduleItem, e enumerator.Enumerator) models.FillerKind {
	if item.GuideMode == models.GuideModeFiller {
		return models.FillerKindGuideMode
	}
	if g, ok := e.(enumerator.GuideAware); ok {
		if include, known := g.CurrentIncludeInProgramGuide(); known && !include {
			return models.FillerKindGuideMode
		}
	}
	return models.FillerKindNone
}

// chaptersFor returns the chapters mid-roll filler may break at.
func (s *modeScheduler) chaptersFor(item *models.ProgramScheduleItem, media *models.MediaItem) []models.MediaChapter {
	v, ok := media.HeadVersion()
	if !ok || len(v.Chapters) == 0 {
		return nil
	}
	chapters := make([]models.MediaChapter, len(v.Chapters))
	copy(chapters, v.Chapters)
	sort.SliceStable(chapters, func(i, j int) bool { return chapters[i].StartTime < chapters[j].StartTime })

	mid := item.MidRollFiller
	if mid == nil || strings.TrimSpace(mid.ChapterExpression) == "" {
		return chapters
	}
	filtered, err := expression.FilterChapters(mid.ChapterExpression, chapters, v.Duration)
	if err != nil {
		if _, seen := s.badExpressions[mid.ID]; !seen {
			s.badExpressions[mid.ID] = struct{}{}
			s.warn(WarningChapterExpression, media.ID, time.Time{}, "filler preset %d chapter expression: %v", mid.ID, err)
		}
		return chapters
	}
	return filtered
}

func newContentItem(media *models.MediaItem, start time.Time, d time.Duration, state builderState, item *models.ProgramScheduleItem, kind models.FillerKind) models.PlayoutItem {
	return models.PlayoutItem{
		MediaItemID: media.ID,
		Start:       start.UTC(),
		Finish:      start.Add(d).UTC(),
		OutPoint:    d,
		GuideGroup:  state.nextGuideGroup,
		FillerKind:  kind,
		CustomTitle: item.CustomTitle,
	}
}

func maxFinish(items []models.PlayoutItem) time.Time {
	var out time.Time
	for i := range items {
		if items[i].Finish.After(out) {
			out = items[i].Finish
		}
	}
	return out
}

func distinctGuideGroups(items []models.PlayoutItem) int {
	seen := make(map[int]struct{})
	for i := range items {
		seen[items[i].GuideGroup] = struct{}{}
	}
	return len(seen)
}

// bumpGuideGroup advances the guide group after a content item unless a
// custom title keeps the whole run in one group.
func bumpGuideGroup(state builderState, item *models.ProgramScheduleItem) int {
	if strings.TrimSpace(item.CustomTitle) != "" {
		return state.nextGuideGroup
	}
	return state.incrementGuideGroup()
}
