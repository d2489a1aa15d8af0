/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/enumerator"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func media(id int, d time.Duration) models.MediaItem {
	return models.MediaItem{
		ID:       id,
		Kind:     models.MediaKindMovie,
		Title:    fmt.Sprintf("item %d", id),
		Versions: []models.MediaVersion{{Duration: d}},
	}
}

func mediaRange(first, n int, d time.Duration) []models.MediaItem {
	out := make([]models.MediaItem, n)
	for i := range out {
		out[i] = media(first+i, d)
	}
	return out
}

func collectionKey(id int) collection.Key {
	return collection.Key{Kind: models.CollectionKindCollection, ID: id}
}

func scheduleItem(id int, mode models.PlayoutMode, collectionID int) *models.ProgramScheduleItem {
	return &models.ProgramScheduleItem{
		ID:              id,
		Index:           id,
		StartType:       models.StartTypeDynamic,
		PlayoutMode:     mode,
		CollectionKind:  models.CollectionKindCollection,
		CollectionRefID: collectionID,
		PlaybackOrder:   models.PlaybackOrderChronological,
	}
}

func fixedAt(item *models.ProgramScheduleItem, at time.Duration) *models.ProgramScheduleItem {
	item.StartType = models.StartTypeFixed
	item.StartTime = &at
	return item
}

func preset(id int, kind models.FillerKind, mode models.FillerMode, collectionID int) *models.FillerPreset {
	return &models.FillerPreset{
		ID:              id,
		FillerKind:      kind,
		FillerMode:      mode,
		CollectionKind:  models.CollectionKindCollection,
		CollectionRefID: collectionID,
	}
}

type fixture struct {
	enumerators map[collection.Key]enumerator.Enumerator
	counts      map[collection.Key]int
}

func newFixture() *fixture {
	return &fixture{
		enumerators: make(map[collection.Key]enumerator.Enumerator),
		counts:      make(map[collection.Key]int),
	}
}

func (f *fixture) add(collectionID int, items ...models.MediaItem) *fixture {
	key := collectionKey(collectionID)
	f.enumerators[key] = enumerator.NewChronological(items, enumerator.State{})
	f.counts[key] = len(items)
	return f
}

func (f *fixture) scheduler() *modeScheduler {
	return newModeScheduler(f.enumerators, f.counts, time.UTC, zerolog.Nop())
}

func startState(items ...*models.ProgramScheduleItem) builderState {
	return builderState{
		items:          enumerator.NewOrdered(items, enumerator.State{}),
		nextGuideGroup: 1,
		currentTime:    t0,
	}
}

func checkTimes(t *testing.T, items []models.PlayoutItem, want [][2]time.Duration) {
	t.Helper()
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, w := range want {
		if !items[i].Start.Equal(t0.Add(w[0])) || !items[i].Finish.Equal(t0.Add(w[1])) {
			t.Errorf("item %d runs %s-%s, want +%s-+%s", i,
				items[i].Start.Format(time.TimeOnly), items[i].Finish.Format(time.TimeOnly), w[0], w[1])
		}
	}
}

func TestScheduleDurationOfflineTail(t *testing.T) {
	f := newFixture().add(1, mediaRange(1, 3, 11*time.Minute)...)
	item := scheduleItem(1, models.PlayoutModeDuration, 1)
	item.PlayoutDuration = 30 * time.Minute
	item.TailMode = models.TailModeOffline
	s := f.scheduler()

	state, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	checkTimes(t, items, [][2]time.Duration{{0, 11 * time.Minute}, {11 * time.Minute, 22 * time.Minute}})
	if !state.currentTime.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("current time = %s, want deadline", state.currentTime)
	}
	if state.durationFinish != nil {
		t.Errorf("duration finish should be cleared")
	}
	if got := f.enumerators[collectionKey(1)].State().Index; got != 2 {
		t.Errorf("enumerator index = %d, want 2", got)
	}
	if items[0].GuideFinish != nil {
		t.Errorf("first item should not carry a guide finish")
	}
	if items[1].GuideFinish == nil || !items[1].GuideFinish.Equal(t0.Add(30*time.Minute)) {
		t.Errorf("last item guide finish = %v, want block deadline", items[1].GuideFinish)
	}
}

func TestScheduleDurationSkipsOverlongItems(t *testing.T) {
	f := newFixture().add(1, media(1, 45*time.Minute), media(2, 10*time.Minute))
	item := scheduleItem(1, models.PlayoutModeDuration, 1)
	item.PlayoutDuration = 30 * time.Minute
	item.TailMode = models.TailModeOffline
	s := f.scheduler()

	state, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	for _, pi := range items {
		if pi.MediaItemID == 1 {
			t.Errorf("overlong item was scheduled")
		}
	}
	if len(s.warnings) == 0 || s.warnings[0].Kind != WarningOverlongItem {
		t.Errorf("expected an overlong item warning, got %+v", s.warnings)
	}
	if !state.currentTime.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("current time = %s, want deadline", state.currentTime)
	}
}

func TestScheduleDurationNothingFits(t *testing.T) {
	f := newFixture().add(1, media(1, 45*time.Minute), media(2, 50*time.Minute))
	item := scheduleItem(1, models.PlayoutModeDuration, 1)
	item.PlayoutDuration = 30 * time.Minute
	s := f.scheduler()

	state, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want none", len(items))
	}
	if !state.currentTime.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("block should stay offline until its deadline, current = %s", state.currentTime)
	}
}

func TestScheduleFloodStopsBeforeFixedItem(t *testing.T) {
	f := newFixture().add(1, mediaRange(1, 3, 5*time.Minute)...).add(2, media(10, time.Hour))
	flood := scheduleItem(1, models.PlayoutModeFlood, 1)
	next := fixedAt(scheduleItem(2, models.PlayoutModeOne, 2), 12*time.Minute)
	s := f.scheduler()

	state, items, err := s.schedule(startState(flood, next), flood, next, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	checkTimes(t, items, [][2]time.Duration{{0, 5 * time.Minute}, {5 * time.Minute, 10 * time.Minute}})
	if state.inFlood {
		t.Errorf("flood should be finished")
	}
	if state.items.Current().ID != next.ID {
		t.Errorf("schedule should advance to the fixed item")
	}
	if got := f.enumerators[collectionKey(1)].State().Index; got != 2 {
		t.Errorf("rejected item should not be consumed, index = %d", got)
	}
}

func TestScheduleFloodContinuesPastHardStop(t *testing.T) {
	f := newFixture().add(1, mediaRange(1, 3, 5*time.Minute)...)
	flood := scheduleItem(1, models.PlayoutModeFlood, 1)
	s := f.scheduler()

	state, items, err := s.schedule(startState(flood), flood, flood, t0.Add(12*time.Minute))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if !state.inFlood {
		t.Errorf("flood should still be in progress at the hard stop")
	}
	if !state.currentTime.Equal(t0.Add(15 * time.Minute)) {
		t.Errorf("current time = %s", state.currentTime)
	}
}

func TestScheduleMultiple(t *testing.T) {
	f := newFixture().add(1, mediaRange(1, 5, 10*time.Minute)...).add(2, media(10, time.Hour))
	item := scheduleItem(1, models.PlayoutModeMultiple, 1)
	item.MultipleCount = 3
	other := scheduleItem(2, models.PlayoutModeOne, 2)
	s := f.scheduler()

	state, items, err := s.schedule(startState(item, other), item, other, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if state.multipleRemaining != nil {
		t.Errorf("remaining count should be cleared, got %d", *state.multipleRemaining)
	}
	if state.items.Current().ID != other.ID {
		t.Errorf("schedule should advance after the multiple")
	}
	if got := f.enumerators[collectionKey(1)].State().Index; got != 3 {
		t.Errorf("enumerator index = %d, want 3", got)
	}
}

func TestScheduleMultipleResumesRemaining(t *testing.T) {
	f := newFixture().add(1, mediaRange(1, 5, 10*time.Minute)...)
	item := scheduleItem(1, models.PlayoutModeMultiple, 1)
	item.MultipleCount = 3
	s := f.scheduler()

	state, items, err := s.schedule(startState(item), item, item, t0.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if state.multipleRemaining == nil || *state.multipleRemaining != 1 {
		t.Fatalf("remaining = %v, want 1", state.multipleRemaining)
	}

	state, items, err = s.schedule(state, item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 1 || items[0].MediaItemID != 3 {
		t.Fatalf("resumed run = %+v, want item 3 only", items)
	}
	if state.multipleRemaining != nil {
		t.Errorf("remaining count should be cleared")
	}
}

func TestScheduleMultipleCollectionSize(t *testing.T) {
	f := newFixture().add(1, mediaRange(1, 4, 10*time.Minute)...)
	item := scheduleItem(1, models.PlayoutModeMultiple, 1)
	item.MultipleMode = models.MultipleModeCollectionSize
	s := f.scheduler()

	_, items, err := s.schedule(startState(item), item, item, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 4 {
		t.Errorf("got %d items, want the collection size 4", len(items))
	}
}

func TestScheduleMultipleZeroCountPlaysCollection(t *testing.T) {
	for _, mode := range []models.MultipleMode{"", models.MultipleModeCount} {
		t.Run(fmt.Sprintf("mode=%q", mode), func(t *testing.T) {
			f := newFixture().add(1, mediaRange(1, 4, 10*time.Minute)...)
			item := scheduleItem(1, models.PlayoutModeMultiple, 1)
			item.MultipleMode = mode
			next := scheduleItem(2, models.PlayoutModeOne, 1)
			s := f.scheduler()

			state, items, err := s.schedule(startState(item, next), item, next, t0.Add(24*time.Hour))
			if err != nil {
				t.Fatalf("schedule: %v", err)
			}
			if len(items) != 4 {
				t.Fatalf("got %d items, want the collection size 4", len(items))
			}
			if !state.currentTime.Equal(t0.Add(40 * time.Minute)) {
				t.Errorf("current time = %s, want +40m", state.currentTime)
			}
			if state.multipleRemaining != nil {
				t.Errorf("remaining count should be cleared")
			}
			if state.items.Current().ID != next.ID {
				t.Errorf("multiple should advance after the whole collection")
			}
		})
	}
}

func TestScheduleDurationTailFinishesPastHardStop(t *testing.T) {
	f := newFixture().
		add(1, mediaRange(1, 3, 11*time.Minute)...).
		add(2, mediaRange(20, 3, 3*time.Minute)...)
	item := scheduleItem(1, models.PlayoutModeDuration, 1)
	item.PlayoutDuration = 30 * time.Minute
	item.TailMode = models.TailModeFiller
	item.TailFiller = preset(1, models.FillerKindTail, models.FillerModeNone, 2)
	next := scheduleItem(2, models.PlayoutModeOne, 1)
	s := f.scheduler()

	// the build window ends inside the tail
	state, items, err := s.schedule(startState(item, next), item, next, t0.Add(25*time.Minute))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	checkTimes(t, items, [][2]time.Duration{
		{0, 11 * time.Minute},
		{11 * time.Minute, 22 * time.Minute},
		{22 * time.Minute, 25 * time.Minute},
		{25 * time.Minute, 28 * time.Minute},
	})
	if !state.currentTime.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("current time = %s, want block deadline", state.currentTime)
	}
	if state.incomplete(item) {
		t.Errorf("block should be complete once its tail is drawn")
	}
	if state.items.Current().ID != next.ID {
		t.Errorf("duration should advance past the finished block")
	}
}

func TestScheduleOneWithTailAndFallback(t *testing.T) {
	f := newFixture().
		add(1, media(1, 7*time.Minute)).
		add(2, mediaRange(20, 3, 3*time.Minute)...).
		add(3, media(30, time.Minute)).
		add(4, media(40, time.Hour))
	item := scheduleItem(1, models.PlayoutModeOne, 1)
	item.TailFiller = preset(1, models.FillerKindTail, models.FillerModeNone, 2)
	item.FallbackFiller = preset(2, models.FillerKindFallback, models.FillerModeNone, 3)
	next := fixedAt(scheduleItem(2, models.PlayoutModeOne, 4), 15*time.Minute)
	s := f.scheduler()

	state, items, err := s.schedule(startState(item, next), item, next, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	checkTimes(t, items, [][2]time.Duration{
		{0, 7 * time.Minute},
		{7 * time.Minute, 10 * time.Minute},
		{10 * time.Minute, 13 * time.Minute},
		{13 * time.Minute, 15 * time.Minute},
	})
	kinds := []models.FillerKind{models.FillerKindNone, models.FillerKindTail, models.FillerKindTail, models.FillerKindFallback}
	for i, k := range kinds {
		if items[i].FillerKind != k {
			t.Errorf("item %d kind = %s, want %s", i, items[i].FillerKind, k)
		}
	}
	if items[3].OutPoint != 0 {
		t.Errorf("fallback should loop without an out point")
	}
	if !state.currentTime.Equal(t0.Add(15 * time.Minute)) {
		t.Errorf("current time = %s", state.currentTime)
	}
	if state.items.Current().ID != next.ID {
		t.Errorf("one should always advance")
	}
}

func TestScheduleUnknownMode(t *testing.T) {
	f := newFixture().add(1, media(1, time.Minute))
	item := scheduleItem(1, "sometimes", 1)
	_, _, err := f.scheduler().schedule(startState(item), item, item, t0.Add(time.Hour))
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("err = %v, want ErrInvariant", err)
	}
}

func TestGuideGroupWraps(t *testing.T) {
	tests := []struct {
		current   int
		increment int
		decrement int
	}{
		{0, 1, maxGuideGroup},
		{1, 2, maxGuideGroup},
		{5, 6, 4},
		{maxGuideGroup, 1, maxGuideGroup - 1},
	}
	for _, tt := range tests {
		s := builderState{nextGuideGroup: tt.current}
		if got := s.incrementGuideGroup(); got != tt.increment {
			t.Errorf("increment(%d) = %d, want %d", tt.current, got, tt.increment)
		}
		if got := s.decrementGuideGroup(); got != tt.decrement {
			t.Errorf("decrement(%d) = %d, want %d", tt.current, got, tt.decrement)
		}
	}
}

func TestFixedStartAfter(t *testing.T) {
	item := fixedAt(scheduleItem(1, models.PlayoutModeOne, 1), 6*time.Hour)
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"before", t0.Add(time.Hour), t0.Add(6 * time.Hour)},
		{"exactly", t0.Add(6 * time.Hour), t0.Add(6 * time.Hour)},
		{"after", t0.Add(7 * time.Hour), t0.Add(30 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fixedStartAfter(tt.at, item, time.UTC); !got.Equal(tt.want) {
				t.Errorf("fixedStartAfter = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStartTimeIgnoresFixedWhileIncomplete(t *testing.T) {
	item := fixedAt(scheduleItem(1, models.PlayoutModeMultiple, 1), 6*time.Hour)
	s := builderState{currentTime: t0.Add(time.Hour)}
	if got := startTimeAfter(s, item, time.UTC); !got.Equal(t0.Add(6 * time.Hour)) {
		t.Errorf("idle start = %s", got)
	}
	s.multipleRemaining = intPtr(2)
	if got := startTimeAfter(s, item, time.UTC); !got.Equal(s.currentTime) {
		t.Errorf("in-progress start = %s, want current time", got)
	}
}
