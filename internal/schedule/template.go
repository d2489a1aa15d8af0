/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule selects the program schedule in effect for a date and
// exports built playouts as guide data.
package schedule

import (
	"slices"
	"sort"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

// AllDaysOfWeek returns every weekday, Sunday first.
func AllDaysOfWeek() []int { return []int{0, 1, 2, 3, 4, 5, 6} }

// AllDaysOfMonth returns 1 through 31.
func AllDaysOfMonth() []int {
	out := make([]int, 31)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// AllMonthsOfYear returns 1 through 12.
func AllMonthsOfYear() []int {
	return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
}

// SelectTemplate returns the lowest-index template matching date, if any.
// The date is interpreted in its own location.
func SelectTemplate(templates []models.PlayoutTemplate, date time.Time) (*models.PlayoutTemplate, bool) {
	ordered := make([]*models.PlayoutTemplate, 0, len(templates))
	for i := range templates {
		ordered = append(ordered, &templates[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	for _, t := range ordered {
		if Matches(t, date) {
			return t, true
		}
	}
	return nil, false
}

// ScheduleFor returns the schedule in effect on date: the first matching
// template's schedule or the playout's default.
func ScheduleFor(p *models.Playout, date time.Time) *models.ProgramSchedule {
	if t, ok := SelectTemplate(p.Templates, date); ok && t.ProgramSchedule != nil {
		return t.ProgramSchedule
	}
	return p.ProgramSchedule
}

// Matches reports whether a single template applies to date.
func Matches(t *models.PlayoutTemplate, date time.Time) bool {
	if !inSet(t.DaysOfWeek, int(date.Weekday())) {
		return false
	}
	if !inSet(t.DaysOfMonth, date.Day()) {
		return false
	}
	if !inSet(t.MonthsOfYear, int(date.Month())) {
		return false
	}
	if !t.LimitToDateRange {
		return true
	}
	return inDateRange(t, date)
}

func inSet(set []int, v int) bool {
	return len(set) == 0 || slices.Contains(set, v)
}

func inDateRange(t *models.PlayoutTemplate, date time.Time) bool {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	if t.StartYear != nil && t.EndYear != nil {
		start := rangeStart(*t.StartYear, t.StartMonth, t.StartDay)
		end := rangeEnd(*t.EndYear, t.EndMonth, t.EndDay)
		return !day.Before(start) && !day.After(end)
	}

	year := date.Year()
	start := rangeStart(year, t.StartMonth, t.StartDay)
	end := rangeEnd(year, t.EndMonth, t.EndDay)
	if !start.After(end) {
		return !day.Before(start) && !day.After(end)
	}
	// the range wraps the new year
	return !day.Before(start) || !day.After(end)
}

// rangeStart rolls an impossible day forward, so Feb 29 starts on Mar 1 in
// a common year.
func rangeStart(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// rangeEnd clamps an impossible day to the last day of its month.
func rangeEnd(year, month, day int) time.Time {
	if month < 1 {
		month = 1
	}
	if month > 12 {
		month = 12
	}
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
