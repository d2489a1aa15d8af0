/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/enumerator"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

const maxGuideGroup = 10000

// builderState is the position of the build loop. It is passed by value to
// the mode schedulers; the schedule item sequence is shared.
type builderState struct {
	items             enumerator.Sequence[*models.ProgramScheduleItem]
	multipleRemaining *int
	durationFinish    *time.Time
	inFlood           bool
	nextGuideGroup    int
	currentTime       time.Time
}

func (s builderState) incrementGuideGroup() int {
	if s.nextGuideGroup < 1 || s.nextGuideGroup >= maxGuideGroup {
		return 1
	}
	return s.nextGuideGroup + 1
}

func (s builderState) decrementGuideGroup() int {
	if s.nextGuideGroup <= 1 {
		return maxGuideGroup
	}
	return s.nextGuideGroup - 1
}

// incomplete reports whether item is part way through a multi-item run, in
// which case it continues immediately instead of waiting for a fixed start.
func (s builderState) incomplete(item *models.ProgramScheduleItem) bool {
	switch item.PlayoutMode {
	case models.PlayoutModeMultiple:
		return s.multipleRemaining != nil
	case models.PlayoutModeDuration:
		return s.durationFinish != nil
	case models.PlayoutModeFlood:
		return s.inFlood
	}
	return false
}

// startTimeAfter is when item would start given the current state.
func startTimeAfter(s builderState, item *models.ProgramScheduleItem, loc *time.Location) time.Time {
	if item.StartType != models.StartTypeFixed || s.incomplete(item) {
		return s.currentTime
	}
	return fixedStartAfter(s.currentTime, item, loc)
}

// fillerStartTimeAfter is the start of item, never later than hardStop.
func fillerStartTimeAfter(s builderState, item *models.ProgramScheduleItem, hardStop time.Time, loc *time.Location) time.Time {
	start := startTimeAfter(s, item, loc)
	if hardStop.Before(start) {
		return hardStop
	}
	return start
}

// fixedStartAfter snaps t forward to the next occurrence of the item's time
// of day in loc. A time of day equal to t's stays on the same day.
func fixedStartAfter(t time.Time, item *models.ProgramScheduleItem, loc *time.Location) time.Time {
	var at time.Duration
	if item.StartTime != nil {
		at = *item.StartTime
	}
	local := t.In(loc)
	day := startOfDay(local)
	if timeOfDay(local) > at {
		day = day.AddDate(0, 0, 1)
	}
	return day.Add(at)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }
