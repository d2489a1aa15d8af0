/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package expression

import (
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

// FilterChapters merges chapters so that only boundaries matching source
// remain. Each boundary (the end of every chapter but the last) is tested
// with these variables, times in seconds:
//
//	point               boundary time
//	num                 1-based boundary number
//	title               lowercased title of the chapter ending at the boundary
//	total_points        number of boundaries
//	total_duration      length of the content
//	remaining_duration  content left after the boundary
//	matched_points      boundaries matched so far
//	last_mid_filler     time since the previous matched boundary (or the start)
//	total_progress      point / total_duration
//
// An empty formula keeps every chapter.
func FilterChapters(source string, chapters []models.MediaChapter, total time.Duration) ([]models.MediaChapter, error) {
	if strings.TrimSpace(source) == "" || len(chapters) < 2 {
		return chapters, nil
	}
	e, err := Compile(source)
	if err != nil {
		return chapters, err
	}

	totalSeconds := total.Seconds()
	points := len(chapters) - 1

	var (
		matched   []int
		lastPoint float64
	)
	for i := 0; i < points; i++ {
		point := chapters[i].EndTime.Seconds()
		progress := 0.0
		if totalSeconds > 0 {
			progress = point / totalSeconds
		}
		ok, err := e.Bool(map[string]cty.Value{
			"point":              cty.NumberFloatVal(point),
			"num":                cty.NumberIntVal(int64(i + 1)),
			"title":              cty.StringVal(strings.ToLower(chapters[i].Title)),
			"total_points":       cty.NumberIntVal(int64(points)),
			"total_duration":     cty.NumberFloatVal(totalSeconds),
			"remaining_duration": cty.NumberFloatVal(totalSeconds - point),
			"matched_points":     cty.NumberIntVal(int64(len(matched))),
			"last_mid_filler":    cty.NumberFloatVal(point - lastPoint),
			"total_progress":     cty.NumberFloatVal(progress),
		})
		if err != nil {
			return chapters, err
		}
		if ok {
			matched = append(matched, i)
			lastPoint = point
		}
	}

	result := make([]models.MediaChapter, 0, len(matched)+1)
	start := 0
	for _, end := range append(matched, len(chapters)-1) {
		merged := chapters[start]
		merged.EndTime = chapters[end].EndTime
		result = append(result, merged)
		start = end + 1
	}
	return result, nil
}
