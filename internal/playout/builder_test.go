/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/shuffle"
)

// memorySource serves fixed content without a database.
type memorySource struct {
	media     map[collection.Key][]models.MediaItem
	playlists map[int]*models.Playlist
}

func newMemorySource() *memorySource {
	return &memorySource{
		media:     make(map[collection.Key][]models.MediaItem),
		playlists: make(map[int]*models.Playlist),
	}
}

func (m *memorySource) MediaItems(_ context.Context, key collection.Key) ([]models.MediaItem, error) {
	return slices.Clone(m.media[key]), nil
}

func (m *memorySource) Groups(_ context.Context, key collection.Key) ([]collection.Group, error) {
	return collection.GroupByParent(key, m.media[key]), nil
}

func (m *memorySource) CustomOrder(context.Context, int) (map[int]int, bool, error) {
	return nil, false, nil
}

func (m *memorySource) Playlist(_ context.Context, id int) (*models.Playlist, error) {
	p, ok := m.playlists[id]
	if !ok {
		return nil, fmt.Errorf("playlist %d not found", id)
	}
	return p, nil
}

func newTestBuilder(src collection.Source) *Builder {
	opts := DefaultOptions()
	opts.Location = time.UTC
	return NewBuilder(src, shuffle.NewFixedSeedGenerator(42), opts, zerolog.Nop())
}

func floodSchedule(id, collectionID int) *models.ProgramSchedule {
	item := scheduleItem(id*10, models.PlayoutModeFlood, collectionID)
	item.PlaybackOrder = models.PlaybackOrderShuffle
	return &models.ProgramSchedule{
		ID:    id,
		Name:  fmt.Sprintf("schedule %d", id),
		Items: []models.ProgramScheduleItem{*item},
	}
}

func testPlayout(s *models.ProgramSchedule) *models.Playout {
	return &models.Playout{ID: 1, ChannelID: 1, ProgramScheduleID: s.ID, ProgramSchedule: s}
}

type slot struct {
	mediaID       int
	start, finish time.Time
}

func slots(items []models.PlayoutItem) []slot {
	out := make([]slot, len(items))
	for i, pi := range items {
		out[i] = slot{pi.MediaItemID, pi.Start, pi.Finish}
	}
	return out
}

func since(items []models.PlayoutItem, at time.Time) []models.PlayoutItem {
	var out []models.PlayoutItem
	for _, pi := range items {
		if !pi.Start.Before(at) {
			out = append(out, pi)
		}
	}
	return out
}

func mixedMedia() []models.MediaItem {
	return []models.MediaItem{
		media(1, 22*time.Minute), media(2, 31*time.Minute), media(3, 45*time.Minute),
		media(4, 8*time.Minute), media(5, 27*time.Minute),
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = mixedMedia()
	s := floodSchedule(1, 1)

	var runs [][]slot
	for i := 0; i < 2; i++ {
		p := testPlayout(s)
		res, err := newTestBuilder(src).BuildWindow(context.Background(), p, ModeReset, t0, t0.Add(48*time.Hour))
		if err != nil {
			t.Fatalf("build %d: %v", i, err)
		}
		if res.Outcome != OutcomeBuilt {
			t.Fatalf("outcome = %s", res.Outcome)
		}
		runs = append(runs, slots(p.Items))
	}

	if !slices.Equal(runs[0], runs[1]) {
		t.Errorf("identical inputs produced different playouts")
	}
}

func TestBuildProducesContiguousTimeline(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = mixedMedia()
	p := testPlayout(floodSchedule(1, 1))
	finish := t0.Add(48 * time.Hour)

	res, err := newTestBuilder(src).BuildWindow(context.Background(), p, ModeReset, t0, finish)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.ItemsAdded != len(p.Items) {
		t.Errorf("items added = %d, playout has %d", res.ItemsAdded, len(p.Items))
	}
	if !p.Items[0].Start.Equal(t0) {
		t.Errorf("first item starts at %s", p.Items[0].Start)
	}
	for i := 1; i < len(p.Items); i++ {
		if !p.Items[i].Start.Equal(p.Items[i-1].Finish) {
			t.Fatalf("gap between item %d and %d", i-1, i)
		}
	}
	if last := p.Items[len(p.Items)-1].Finish; last.Before(finish) {
		t.Errorf("timeline ends at %s, before %s", last, finish)
	}
	if p.Anchor == nil || p.Anchor.NextStart.Before(finish) {
		t.Fatalf("anchor = %+v, want next start at or after the window", p.Anchor)
	}

	var checkpoints, continues int
	for _, a := range p.ScheduleAnchors {
		if a.AnchorDate != nil {
			checkpoints++
		} else {
			continues++
		}
	}
	if checkpoints != 1 || continues != 1 {
		t.Errorf("checkpoints = %d, continue anchors = %d, want 1 and 1", checkpoints, continues)
	}
}

func TestContinueMatchesSingleBuild(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = mixedMedia()
	s := floodSchedule(1, 1)
	ctx := context.Background()

	whole := testPlayout(s)
	if _, err := newTestBuilder(src).BuildWindow(ctx, whole, ModeReset, t0, t0.Add(48*time.Hour)); err != nil {
		t.Fatalf("whole build: %v", err)
	}

	parts := testPlayout(s)
	b := newTestBuilder(src)
	if _, err := b.BuildWindow(ctx, parts, ModeReset, t0, t0.Add(24*time.Hour)); err != nil {
		t.Fatalf("first part: %v", err)
	}
	res, err := b.BuildWindow(ctx, parts, ModeContinue, t0, t0.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("second part: %v", err)
	}
	if res.Outcome != OutcomeBuilt {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	if !slices.Equal(slots(whole.Items), slots(parts.Items)) {
		t.Errorf("continued playout differs from a single build")
	}
}

func TestContinueNothingToDo(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = mixedMedia()
	p := testPlayout(floodSchedule(1, 1))
	b := newTestBuilder(src)
	ctx := context.Background()

	if _, err := b.BuildWindow(ctx, p, ModeContinue, t0, t0.Add(12*time.Hour)); err != nil {
		t.Fatalf("build: %v", err)
	}
	before := slots(p.Items)

	res, err := b.BuildWindow(ctx, p, ModeContinue, t0, t0.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if res.Outcome != OutcomeNothingToDo {
		t.Errorf("outcome = %s, want nothing_to_do", res.Outcome)
	}
	if !slices.Equal(before, slots(p.Items)) {
		t.Errorf("playout changed without work to do")
	}
}

func TestRefreshRebuildsFromCheckpoint(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = mixedMedia()
	s := floodSchedule(1, 1)
	ctx := context.Background()
	day := t0.Add(24 * time.Hour)

	p := testPlayout(s)
	if _, err := newTestBuilder(src).BuildWindow(ctx, p, ModeReset, t0, t0.Add(72*time.Hour)); err != nil {
		t.Fatalf("reset: %v", err)
	}
	want := slots(since(p.Items, day.Add(10*time.Hour)))

	res, err := newTestBuilder(src).BuildWindow(ctx, p, ModeRefresh, day.Add(10*time.Hour), t0.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Outcome != OutcomeBuilt {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if got := slots(since(p.Items, day.Add(10*time.Hour))); !slices.Equal(got, want) {
		t.Errorf("refresh from checkpoint changed the timeline")
	}
	for _, pi := range p.Items {
		if pi.Finish.Before(day.Add(6 * time.Hour)) {
			t.Fatalf("item finishing %s survived history trim", pi.Finish)
		}
	}
}

func TestBuildEmptyCollection(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = []models.MediaItem{media(1, 0)}
	p := testPlayout(floodSchedule(1, 1))

	res, err := newTestBuilder(src).BuildWindow(context.Background(), p, ModeReset, t0, t0.Add(24*time.Hour))
	var empty *EmptyCollectionError
	if !errors.As(err, &empty) || !errors.Is(err, ErrEmptyCollection) {
		t.Fatalf("err = %v, want EmptyCollectionError", err)
	}
	if empty.Key != collectionKey(1) {
		t.Errorf("key = %s", empty.Key)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != WarningZeroDuration {
		t.Errorf("warnings = %+v, want one zero duration warning", res.Warnings)
	}
	if p.Items != nil || p.Anchor != nil {
		t.Errorf("failed build modified the playout")
	}
}

func TestBuildSkipsMissingItems(t *testing.T) {
	src := newMemorySource()
	missing := media(2, 10*time.Minute)
	missing.State = models.MediaStateFileNotFound
	src.media[collectionKey(1)] = []models.MediaItem{media(1, 10*time.Minute), missing}
	p := testPlayout(floodSchedule(1, 1))

	b := newTestBuilder(src)
	b.opts.SkipMissingItems = true
	res, err := b.BuildWindow(context.Background(), p, ModeReset, t0, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, pi := range p.Items {
		if pi.MediaItemID == 2 {
			t.Fatalf("missing item was scheduled")
		}
	}
	if len(res.Warnings) == 0 || res.Warnings[0].Kind != WarningMissingMedia {
		t.Errorf("warnings = %+v", res.Warnings)
	}
}

func TestBuildSchedulingLoop(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = mixedMedia()
	// a plain collection has no playlist entry, so the run is empty and
	// the clock never moves
	item := scheduleItem(1, models.PlayoutModeMultiple, 1)
	item.MultipleMode = models.MultipleModePlaylistItemSize
	s := &models.ProgramSchedule{ID: 1, Items: []models.ProgramScheduleItem{*item}}
	p := testPlayout(s)

	_, err := newTestBuilder(src).BuildWindow(context.Background(), p, ModeReset, t0, t0.Add(24*time.Hour))
	if !errors.Is(err, ErrSchedulingLoop) {
		t.Fatalf("err = %v, want ErrSchedulingLoop", err)
	}
}

func TestBuildNoScheduleItems(t *testing.T) {
	p := testPlayout(&models.ProgramSchedule{ID: 1})
	_, err := newTestBuilder(newMemorySource()).BuildWindow(context.Background(), p, ModeReset, t0, t0.Add(time.Hour))
	if !errors.Is(err, ErrNoScheduleItems) {
		t.Errorf("err = %v, want ErrNoScheduleItems", err)
	}
}

func TestBuildCanceled(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = mixedMedia()
	p := testPlayout(floodSchedule(1, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestBuilder(src).BuildWindow(ctx, p, ModeReset, t0, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("canceled build returned error: %v", err)
	}
	if res.Outcome != OutcomeCanceled {
		t.Errorf("outcome = %s, want canceled", res.Outcome)
	}
	if p.Items != nil {
		t.Errorf("canceled build modified the playout")
	}
}

func TestBuildAlternateSchedule(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = mediaRange(1, 3, 30*time.Minute)
	src.media[collectionKey(2)] = mediaRange(11, 3, 30*time.Minute)

	weekday := floodSchedule(1, 1)
	saturday := floodSchedule(2, 2)
	p := testPlayout(weekday)
	p.Templates = []models.PlayoutTemplate{{
		ProgramScheduleID: saturday.ID,
		ProgramSchedule:   saturday,
		DaysOfWeek:        []int{int(time.Saturday)},
	}}

	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	if _, err := newTestBuilder(src).BuildWindow(context.Background(), p, ModeReset, friday, friday.Add(72*time.Hour)); err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, pi := range p.Items {
		onSaturday := pi.Start.Weekday() == time.Saturday
		fromSaturday := pi.MediaItemID > 10
		if onSaturday != fromSaturday {
			t.Errorf("item %d at %s played from the wrong schedule", pi.MediaItemID, pi.Start)
		}
	}
	if got := p.Items[len(p.Items)-1].MediaItemID; got > 10 {
		t.Errorf("sunday should return to the default schedule, last item %d", got)
	}
}

func TestBuildPlaylist(t *testing.T) {
	src := newMemorySource()
	src.media[collectionKey(1)] = mediaRange(1, 2, 10*time.Minute)
	src.media[collectionKey(2)] = mediaRange(11, 3, 10*time.Minute)
	playlist := &models.Playlist{ID: 7, Items: []models.PlaylistItem{
		{ID: 1, Index: 0, CollectionKind: models.CollectionKindCollection, CollectionRefID: 1, PlaybackOrder: models.PlaybackOrderChronological, PlayAll: true, IncludeInProgramGuide: true},
		{ID: 2, Index: 1, CollectionKind: models.CollectionKindCollection, CollectionRefID: 2, PlaybackOrder: models.PlaybackOrderChronological, IncludeInProgramGuide: true},
	}}
	src.playlists[7] = playlist
	src.media[collection.Key{Kind: models.CollectionKindPlaylist, ID: 7}] = append(mediaRange(1, 2, 10*time.Minute), mediaRange(11, 3, 10*time.Minute)...)

	item := scheduleItem(1, models.PlayoutModeFlood, 0)
	item.CollectionKind = models.CollectionKindPlaylist
	item.CollectionRefID = 7
	p := testPlayout(&models.ProgramSchedule{ID: 1, Items: []models.ProgramScheduleItem{*item}})

	if _, err := newTestBuilder(src).BuildWindow(context.Background(), p, ModeReset, t0, t0.Add(time.Hour)); err != nil {
		t.Fatalf("build: %v", err)
	}
	got := make([]int, 0, len(p.Items))
	for _, pi := range p.Items {
		got = append(got, pi.MediaItemID)
	}
	if want := []int{1, 2, 11, 1, 2, 12}; !slices.Equal(got, want) {
		t.Errorf("playlist order = %v, want %v", got, want)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"continue", ModeContinue, false},
		{"Refresh", ModeRefresh, false},
		{" reset ", ModeReset, false},
		{"", ModeContinue, false},
		{"rebuild", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}
