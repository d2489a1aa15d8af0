/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"strings"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/enumerator"
	"github.com/friendsincode/grimnir_playout/internal/expression"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/shuffle"
)

// playFillers returns the pre, mid and post roll presets of item.
func playFillers(item *models.ProgramScheduleItem) []*models.FillerPreset {
	var out []*models.FillerPreset
	for _, f := range []*models.FillerPreset{item.PreRollFiller, item.MidRollFiller, item.PostRollFiller} {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func isPad(f *models.FillerPreset) bool {
	return f.FillerMode == models.FillerModePad && f.PadToNearestMinute != nil && *f.PadToNearestMinute > 0
}

func padFiller(all []*models.FillerPreset) (*models.FillerPreset, int) {
	var (
		pad   *models.FillerPreset
		count int
	)
	for _, f := range all {
		if isPad(f) {
			if pad == nil {
				pad = f
			}
			count++
		}
	}
	return pad, count
}

// usableMidRoll reports whether the mid-roll preset can actually fill a break.
func usableMidRoll(f *models.FillerPreset) bool {
	if f == nil {
		return false
	}
	switch f.FillerMode {
	case models.FillerModeDuration:
		return f.Duration != nil
	case models.FillerModeCount:
		return f.Count != nil || strings.TrimSpace(f.CountExpression) != ""
	case models.FillerModePad:
		return isPad(f)
	}
	return false
}

// fillerCount is the number of items a count preset plays per break. A count
// expression sees the collection size and a random draw seeded from the
// break's start, so prediction and scheduling agree.
func fillerCount(f *models.FillerPreset, e enumerator.Enumerator, at time.Time) (int, error) {
	if strings.TrimSpace(f.CountExpression) != "" {
		n := e.Count()
		random := 0
		if n > 0 {
			random = shuffle.New(int32(at.Unix()/60) + int32(f.ID)).IntN(n)
		}
		c, err := expression.EvaluateCount(f.CountExpression, n, random)
		if err == nil {
			if c < 0 {
				c = 0
			}
			return c, nil
		}
		if f.Count != nil {
			return *f.Count, err
		}
		return 0, err
	}
	if f.Count != nil {
		return *f.Count, nil
	}
	return 0, nil
}

// padTarget rounds t up to the next whole minute that is a multiple of n.
func (s *modeScheduler) padTarget(t time.Time, n int) time.Time {
	local := t.In(s.loc)
	up := local.Truncate(time.Minute)
	if up.Before(local) {
		up = up.Add(time.Minute)
	}
	m := up.Minute()
	target := (m + n - 1) / n * n
	return up.Add(time.Duration(target-m) * time.Minute)
}

// calculateEndTimeWithFiller estimates when item will finish once pre, mid
// and post roll filler is added, by peeking the filler enumerators. It
// reports false when a filler enumerator cannot peek.
func (s *modeScheduler) calculateEndTimeWithFiller(item *models.ProgramScheduleItem, start time.Time, d time.Duration, chapters []models.MediaChapter) (time.Time, bool) {
	all := playFillers(item)
	pad, pads := padFiller(all)
	if pads > 1 {
		return start.Add(d), true
	}
	for _, f := range all {
		if _, ok := s.enumerators[collection.ForFiller(f)].(enumerator.Peeker); !ok {
			return time.Time{}, false
		}
	}
	if !usableMidRoll(item.MidRollFiller) {
		chapters = nil
	}

	total := d
	offsets := make(map[collection.Key]int)
	peek := func(key collection.Key) (*models.MediaItem, bool) {
		m, ok, err := enumerator.Peek(s.enumerators[key], offsets[key])
		if err != nil || !ok {
			return nil, false
		}
		return m, true
	}
	fillDuration := func(key collection.Key, budget time.Duration) {
		for {
			m, ok := peek(key)
			if !ok {
				return
			}
			budget -= m.Duration()
			if budget < 0 {
				return
			}
			total += m.Duration()
			offsets[key]++
		}
	}
	fillCount := func(key collection.Key, n int) {
		for i := 0; i < n; i++ {
			m, ok := peek(key)
			if !ok {
				return
			}
			total += m.Duration()
			offsets[key]++
		}
	}

	for _, f := range all {
		key := collection.ForFiller(f)
		breaks := 1
		if f.FillerKind == models.FillerKindMidRoll {
			breaks = len(chapters) - 1
		}
		for i := 0; i < breaks; i++ {
			switch {
			case f.FillerMode == models.FillerModeDuration && f.Duration != nil:
				fillDuration(key, *f.Duration)
			case f.FillerMode == models.FillerModeCount:
				n, _ := fillerCount(f, s.enumerators[key], start)
				fillCount(key, n)
			}
		}
	}

	if pad != nil {
		return s.padTarget(start.Add(total), *pad.PadToNearestMinute), true
	}
	return start.Add(total), true
}

// addFiller surrounds content with pre, mid and post roll filler and pads
// the result when a preset asks for it. Item times are rewritten to run
// back to back from the content's start.
func (s *modeScheduler) addFiller(state builderState, item *models.ProgramScheduleItem, content models.PlayoutItem, chapters []models.MediaChapter) []models.PlayoutItem {
	all := playFillers(item)
	pad, pads := padFiller(all)
	if pads > 1 {
		s.logger.Error().Int("schedule_item_id", item.ID).Msg("multiple pad-to-nearest-minute values are invalid; no filler will be used")
		s.warn(WarningPadConflict, content.MediaItemID, content.Start, "schedule item %d has conflicting pad filler", item.ID)
		return []models.PlayoutItem{content}
	}

	effective := chapters
	if !usableMidRoll(item.MidRollFiller) || len(effective) <= 1 {
		effective = nil
	}
	midPad := item.MidRollFiller != nil && isPad(item.MidRollFiller)

	var result []models.PlayoutItem
	if f := item.PreRollFiller; f != nil && !isPad(f) {
		result = append(result, s.presetFiller(state, f, models.FillerKindPreRoll, content)...)
	}

	switch {
	case len(effective) <= 1:
		result = append(result, content)
	case midPad:
		// chapters are placed while padding
	default:
		for i, ch := range effective {
			result = append(result, forChapter(content, ch))
			if i < len(effective)-1 {
				result = append(result, s.presetFiller(state, item.MidRollFiller, models.FillerKindMidRoll, content)...)
			}
		}
	}

	if f := item.PostRollFiller; f != nil && !isPad(f) {
		result = append(result, s.presetFiller(state, f, models.FillerKindPostRoll, content)...)
	}

	if pad != nil {
		result = s.addPadding(state, item, pad, content, result, effective, midPad)
	}

	current := content.Start
	for i := range result {
		d := result[i].Duration()
		result[i].Start = current.UTC()
		result[i].Finish = current.Add(d).UTC()
		current = current.Add(d)
	}
	return result
}

func (s *modeScheduler) addPadding(state builderState, item *models.ProgramScheduleItem, pad *models.FillerPreset, content models.PlayoutItem, result []models.PlayoutItem, chapters []models.MediaChapter, midPad bool) []models.PlayoutItem {
	total := sumDuration(result)
	if midPad && len(chapters) > 1 {
		for _, ch := range chapters {
			total += ch.EndTime - ch.StartTime
		}
	}
	target := s.padTarget(content.Start.Add(total), *pad.PadToNearestMinute)
	remaining := target.Sub(content.Start) - total
	e := s.enumerators[collection.ForFiller(pad)]

	switch pad.FillerKind {
	case models.FillerKindPreRoll:
		result = append(s.durationFiller(state, e, remaining, models.FillerKindPreRoll), result...)
		remaining = target.Sub(content.Start) - sumDuration(result)
		if remaining > 0 {
			if fb, ok := s.fallbackForPad(state, item, remaining); ok {
				result = append([]models.PlayoutItem{fb}, result...)
			}
		}
	case models.FillerKindMidRoll:
		if len(chapters) <= 1 {
			break
		}
		queue := s.durationFiller(state, e, remaining, models.FillerKindMidRoll)
		average := remaining / time.Duration(len(chapters)-1)
		var filled time.Duration
		for i, ch := range chapters {
			result = append(result, forChapter(content, ch))
			if i == len(chapters)-1 {
				continue
			}
			var current time.Duration
			for current < average && filled < remaining {
				if len(queue) > 0 {
					next := queue[0]
					queue = queue[1:]
					result = append(result, next)
					current += next.Duration()
					filled += next.Duration()
					continue
				}
				gap := min(average-current, remaining-filled)
				fb, ok := s.fallbackForPad(state, item, gap)
				if !ok {
					break
				}
				result = append(result, fb)
				current += fb.Duration()
				filled += fb.Duration()
			}
		}
	case models.FillerKindPostRoll:
		result = append(result, s.durationFiller(state, e, remaining, models.FillerKindPostRoll)...)
		remaining = target.Sub(content.Start) - sumDuration(result)
		if remaining > 0 {
			if fb, ok := s.fallbackForPad(state, item, remaining); ok {
				result = append(result, fb)
			}
		}
	}
	return result
}

// presetFiller plays one break of a duration or count preset.
func (s *modeScheduler) presetFiller(state builderState, f *models.FillerPreset, kind models.FillerKind, content models.PlayoutItem) []models.PlayoutItem {
	e := s.enumerators[collection.ForFiller(f)]
	switch f.FillerMode {
	case models.FillerModeDuration:
		if f.Duration != nil {
			return s.durationFiller(state, e, *f.Duration, kind)
		}
	case models.FillerModeCount:
		n, err := fillerCount(f, e, content.Start)
		if err != nil {
			s.warn(WarningCountExpression, content.MediaItemID, content.Start, "filler preset %d count expression: %v", f.ID, err)
		}
		return s.countFiller(state, e, n, kind)
	}
	return nil
}

func (s *modeScheduler) countFiller(state builderState, e enumerator.Enumerator, n int, kind models.FillerKind) []models.PlayoutItem {
	var result []models.PlayoutItem
	for i := 0; i < n; i++ {
		m, ok := e.Current()
		if !ok {
			break
		}
		result = append(result, fillerItem(m, m.Duration(), kind, state.nextGuideGroup))
		e.MoveNext()
	}
	return result
}

// durationFiller plays whole filler items that fit in d. An item much longer
// than the gap is skipped once; otherwise the first item that does not fit
// ends the block.
func (s *modeScheduler) durationFiller(state builderState, e enumerator.Enumerator, d time.Duration, kind models.FillerKind) []models.PlayoutItem {
	var result []models.PlayoutItem
	remaining := d
	skipped := false
	for remaining > 0 {
		m, ok := e.Current()
		if !ok {
			break
		}
		itemDuration := m.Duration()
		if remaining-itemDuration >= 0 {
			result = append(result, fillerItem(m, itemDuration, kind, state.nextGuideGroup))
			remaining -= itemDuration
			e.MoveNext()
			continue
		}
		if skipped {
			break
		}
		if float64(itemDuration) >= float64(d)*1.5 {
			s.warn(WarningOverlongFiller, m.ID, time.Time{}, "filler item is too long (%s) to fill %s; skipping to next filler item", itemDuration, d)
			skipped = true
			e.MoveNext()
			continue
		}
		if itemDuration > d {
			s.warn(WarningOverlongFiller, m.ID, time.Time{}, "filler item is too long (%s) to fill %s; aborting filler block", itemDuration, d)
		}
		break
	}
	return result
}

// fallbackForPad stretches one fallback item over d.
func (s *modeScheduler) fallbackForPad(state builderState, item *models.ProgramScheduleItem, d time.Duration) (models.PlayoutItem, bool) {
	if item.FallbackFiller == nil || d <= 0 {
		return models.PlayoutItem{}, false
	}
	e := s.enumerators[collection.ForFiller(item.FallbackFiller)]
	m, ok := e.Current()
	if !ok {
		return models.PlayoutItem{}, false
	}
	fb := fillerItem(m, d, models.FillerKindFallback, state.nextGuideGroup)
	fb.OutPoint = 0
	e.MoveNext()
	return fb, true
}

// addTailFiller plays tail filler until the next item starts, stopping
// before an item that would run past it.
func (s *modeScheduler) addTailFiller(state builderState, item *models.ProgramScheduleItem, items []models.PlayoutItem, nextStart time.Time) (builderState, []models.PlayoutItem) {
	if item.TailFiller == nil {
		return state, items
	}
	e := s.enumerators[collection.ForFiller(item.TailFiller)]
	for state.currentTime.Before(nextStart) {
		m, ok := e.Current()
		if !ok {
			break
		}
		d := m.Duration()
		if state.currentTime.Add(d).After(nextStart) {
			s.logger.Debug().
				Dur("duration", d).
				Time("next_item_start", nextStart).
				Msg("filler will go past next item start")
			break
		}
		tail := fillerItem(m, d, models.FillerKindTail, state.nextGuideGroup)
		tail.Start = state.currentTime.UTC()
		tail.Finish = state.currentTime.Add(d).UTC()
		items = append(items, tail)
		state.currentTime = state.currentTime.Add(d)
		e.MoveNext()
	}
	return state, items
}

// addFallbackFiller closes any gap before nextStart with one fallback item.
func (s *modeScheduler) addFallbackFiller(state builderState, item *models.ProgramScheduleItem, items []models.PlayoutItem, nextStart time.Time) (builderState, []models.PlayoutItem) {
	if item.FallbackFiller == nil || !state.currentTime.Before(nextStart) {
		return state, items
	}
	e := s.enumerators[collection.ForFiller(item.FallbackFiller)]
	m, ok := e.Current()
	if !ok {
		return state, items
	}
	fb := fillerItem(m, nextStart.Sub(state.currentTime), models.FillerKindFallback, state.nextGuideGroup)
	fb.Start = state.currentTime.UTC()
	fb.Finish = nextStart.UTC()
	fb.OutPoint = 0
	items = append(items, fb)
	state.currentTime = nextStart
	e.MoveNext()
	return state, items
}

// fillerItem builds a filler item with placeholder times.
func fillerItem(m *models.MediaItem, d time.Duration, kind models.FillerKind, guideGroup int) models.PlayoutItem {
	return models.PlayoutItem{
		MediaItemID: m.ID,
		Finish:      time.Time{}.Add(d),
		OutPoint:    d,
		GuideGroup:  guideGroup,
		FillerKind:  kind,
	}
}

// forChapter narrows content to one chapter.
func forChapter(content models.PlayoutItem, ch models.MediaChapter) models.PlayoutItem {
	out := content
	out.InPoint = ch.StartTime
	out.OutPoint = ch.EndTime
	out.Finish = content.Start.Add(ch.EndTime - ch.StartTime)
	out.ChapterTitle = ch.Title
	return out
}

func sumDuration(items []models.PlayoutItem) time.Duration {
	var total time.Duration
	for i := range items {
		total += items[i].Duration()
	}
	return total
}
