/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"testing"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/enumerator"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

func durationPtr(d time.Duration) *time.Duration { return &d }

func withChapters(m models.MediaItem, lengths ...time.Duration) models.MediaItem {
	var (
		start    time.Duration
		chapters []models.MediaChapter
	)
	for i, l := range lengths {
		chapters = append(chapters, models.MediaChapter{
			ChapterID: i,
			StartTime: start,
			EndTime:   start + l,
			Title:     "chapter",
		})
		start += l
	}
	m.Versions[0].Duration = start
	m.Versions[0].Chapters = chapters
	return m
}

func TestPadTarget(t *testing.T) {
	s := newFixture().scheduler()
	tests := []struct {
		name string
		at   time.Duration
		n    int
		want time.Duration
	}{
		{"rounds up to multiple", 22 * time.Minute, 15, 30 * time.Minute},
		{"partial minute rounds up first", 22*time.Minute + 30*time.Second, 5, 25 * time.Minute},
		{"already aligned", 30 * time.Minute, 15, 30 * time.Minute},
		{"crosses the hour", 52 * time.Minute, 30, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.padTarget(t0.Add(tt.at), tt.n); !got.Equal(t0.Add(tt.want)) {
				t.Errorf("padTarget = %s, want +%s", got.Format(time.TimeOnly), tt.want)
			}
		})
	}
}

func TestPostRollPadWithFallback(t *testing.T) {
	f := newFixture().
		add(1, media(1, 22*time.Minute)).
		add(2, mediaRange(20, 5, 3*time.Minute)...).
		add(3, media(30, time.Minute))
	item := scheduleItem(1, models.PlayoutModeOne, 1)
	post := preset(1, models.FillerKindPostRoll, models.FillerModePad, 2)
	fifteen := 15
	post.PadToNearestMinute = &fifteen
	item.PostRollFiller = post
	item.FallbackFiller = preset(2, models.FillerKindFallback, models.FillerModeNone, 3)
	s := f.scheduler()

	_, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	checkTimes(t, items, [][2]time.Duration{
		{0, 22 * time.Minute},
		{22 * time.Minute, 25 * time.Minute},
		{25 * time.Minute, 28 * time.Minute},
		{28 * time.Minute, 30 * time.Minute},
	})
	if items[3].FillerKind != models.FillerKindFallback {
		t.Errorf("last item kind = %s, want fallback", items[3].FillerKind)
	}
	if len(s.warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", s.warnings)
	}
}

func TestPadConflictDisablesFiller(t *testing.T) {
	f := newFixture().
		add(1, media(1, 22*time.Minute)).
		add(2, mediaRange(20, 5, 3*time.Minute)...)
	item := scheduleItem(1, models.PlayoutModeOne, 1)
	fifteen, thirty := 15, 30
	item.PreRollFiller = preset(1, models.FillerKindPreRoll, models.FillerModePad, 2)
	item.PreRollFiller.PadToNearestMinute = &fifteen
	item.PostRollFiller = preset(2, models.FillerKindPostRoll, models.FillerModePad, 2)
	item.PostRollFiller.PadToNearestMinute = &thirty
	s := f.scheduler()

	_, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 1 || items[0].FillerKind != models.FillerKindNone {
		t.Fatalf("got %+v, want only the content item", items)
	}
	if len(s.warnings) != 1 || s.warnings[0].Kind != WarningPadConflict {
		t.Errorf("warnings = %+v, want one pad conflict", s.warnings)
	}
}

func TestMidRollAtChapterBreaks(t *testing.T) {
	f := newFixture().
		add(1, withChapters(media(1, 0), 10*time.Minute, 10*time.Minute, 10*time.Minute)).
		add(2, mediaRange(20, 4, time.Minute)...)
	item := scheduleItem(1, models.PlayoutModeOne, 1)
	one := 1
	item.MidRollFiller = preset(1, models.FillerKindMidRoll, models.FillerModeCount, 2)
	item.MidRollFiller.Count = &one
	s := f.scheduler()

	_, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	checkTimes(t, items, [][2]time.Duration{
		{0, 10 * time.Minute},
		{10 * time.Minute, 11 * time.Minute},
		{11 * time.Minute, 21 * time.Minute},
		{21 * time.Minute, 22 * time.Minute},
		{22 * time.Minute, 32 * time.Minute},
	})
	wantIn := []time.Duration{0, 10 * time.Minute, 20 * time.Minute}
	for i, idx := range []int{0, 2, 4} {
		if items[idx].MediaItemID != 1 || items[idx].InPoint != wantIn[i] {
			t.Errorf("chapter %d = %+v", i, items[idx])
		}
	}
	for _, idx := range []int{1, 3} {
		if items[idx].FillerKind != models.FillerKindMidRoll {
			t.Errorf("item %d kind = %s, want mid_roll", idx, items[idx].FillerKind)
		}
	}
}

func TestPreRollDurationFiller(t *testing.T) {
	f := newFixture().
		add(1, media(1, 20*time.Minute)).
		add(2, mediaRange(20, 4, 2*time.Minute)...)
	item := scheduleItem(1, models.PlayoutModeOne, 1)
	item.PreRollFiller = preset(1, models.FillerKindPreRoll, models.FillerModeDuration, 2)
	item.PreRollFiller.Duration = durationPtr(5 * time.Minute)
	s := f.scheduler()

	_, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	checkTimes(t, items, [][2]time.Duration{
		{0, 2 * time.Minute},
		{2 * time.Minute, 4 * time.Minute},
		{4 * time.Minute, 24 * time.Minute},
	})
	if items[2].MediaItemID != 1 {
		t.Errorf("content should follow the pre-roll")
	}
}

func TestCustomOrderFillerSkipsPrediction(t *testing.T) {
	f := newFixture().add(1, media(1, 20*time.Minute))
	bumpers := mediaRange(20, 3, 2*time.Minute)
	f.enumerators[collectionKey(2)] = enumerator.NewCustomOrder(bumpers, map[int]int{20: 2, 21: 0, 22: 1}, enumerator.State{})
	f.counts[collectionKey(2)] = len(bumpers)

	item := scheduleItem(1, models.PlayoutModeOne, 1)
	two := 2
	item.PreRollFiller = preset(1, models.FillerKindPreRoll, models.FillerModeCount, 2)
	item.PreRollFiller.Count = &two
	s := f.scheduler()

	if _, ok := s.calculateEndTimeWithFiller(item, t0, 20*time.Minute, nil); ok {
		t.Fatalf("custom order filler should not be predicted")
	}

	_, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	checkTimes(t, items, [][2]time.Duration{
		{0, 2 * time.Minute},
		{2 * time.Minute, 4 * time.Minute},
		{4 * time.Minute, 24 * time.Minute},
	})
	if items[0].MediaItemID != 21 || items[1].MediaItemID != 22 {
		t.Errorf("pre-roll = %d, %d, want custom order 21, 22", items[0].MediaItemID, items[1].MediaItemID)
	}
	for _, w := range s.warnings {
		if w.Kind == WarningPredictionMiss {
			t.Errorf("unexpected prediction warning: %s", w.Message)
		}
	}
}

func TestCalculateEndTimeMatchesSchedule(t *testing.T) {
	f := newFixture().
		add(1, withChapters(media(1, 0), 7*time.Minute, 8*time.Minute)).
		add(2, mediaRange(20, 3, 2*time.Minute)...).
		add(3, mediaRange(30, 3, 90*time.Second)...)
	item := scheduleItem(1, models.PlayoutModeOne, 1)
	two := 2
	item.PreRollFiller = preset(1, models.FillerKindPreRoll, models.FillerModeCount, 2)
	item.PreRollFiller.Count = &two
	item.MidRollFiller = preset(2, models.FillerKindMidRoll, models.FillerModeDuration, 3)
	item.MidRollFiller.Duration = durationPtr(3 * time.Minute)
	s := f.scheduler()

	m, _ := f.enumerators[collectionKey(1)].Current()
	chapters := s.chaptersFor(item, m)
	predicted, ok := s.calculateEndTimeWithFiller(item, t0, m.Duration(), chapters)
	if !ok {
		t.Fatalf("prediction unavailable for chronological filler")
	}

	_, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := maxFinish(items); !got.Equal(predicted) {
		t.Errorf("scheduled end %s, predicted %s", got.Format(time.TimeOnly), predicted.Format(time.TimeOnly))
	}
	if want := t0.Add(15*time.Minute + 4*time.Minute + 3*time.Minute); !predicted.Equal(want) {
		t.Errorf("predicted %s, want %s", predicted.Format(time.TimeOnly), want.Format(time.TimeOnly))
	}
}
