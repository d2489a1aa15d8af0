/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package grouping

import (
	"testing"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

func namedEpisodes(titles ...string) []models.MediaItem {
	items := make([]models.MediaItem, len(titles))
	for i, title := range titles {
		items[i] = models.MediaItem{
			ID:            i + 1,
			Kind:          models.MediaKindEpisode,
			Title:         title,
			ShowID:        1,
			SeasonNumber:  1,
			EpisodeNumber: i + 1,
		}
	}
	return items
}

// shape renders groups as lists of item ids.
func shape(groups []GroupedMediaItem) [][]int {
	out := make([][]int, len(groups))
	for i, g := range groups {
		out[i] = append(out[i], g.First.ID)
		for _, a := range g.Additional {
			out[i] = append(out[i], a.ID)
		}
	}
	return out
}

func sameShape(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func TestGroupMultiPartEpisodes(t *testing.T) {
	tests := []struct {
		name   string
		titles [][]string
		want   [][]int
	}{
		{
			name: "not grouped, grouped, not grouped",
			titles: [][]string{
				{"Episode 1", "Episode 2 (1)", "Episode 3 (2)", "Episode 4"},
				{"Episode 1 - More", "Episode 2 (1) - Title", "Episode 3 (2) - After", "Episode 4 - Dash"},
				{"Episode 1", "Episode 2 Part 1", "Episode 3 Part 2", "Episode 4"},
			},
			want: [][]int{{1}, {2, 3}, {4}},
		},
		{
			name: "grouped, not grouped",
			titles: [][]string{
				{"Episode 1 (1)", "Episode 2 (2)", "Episode 3"},
				{"Episode 1 (1) - More", "Episode 2 (2) - Title", "Episode 3 - After"},
				{"Episode 1 Part 1", "Episode 2 Part 2", "Episode 3"},
			},
			want: [][]int{{1, 2}, {3}},
		},
		{
			name: "grouped, not grouped, grouped",
			titles: [][]string{
				{"Episode 1 (1)", "Episode 2 (2)", "Episode 3", "Episode 4 (1)", "Episode 5 (2)"},
				{"Episode 1 (1) - More", "Episode 2 (2) - Title", "Episode 3 - After", "Episode 4 (1) - Dash", "Episode 5 (2) - Again"},
				{"Episode 1 Part 1", "Episode 2 Part 2", "Episode 3", "Episode 4 Part 1", "Episode 5 Part 2"},
			},
			want: [][]int{{1, 2}, {3}, {4, 5}},
		},
		{
			name: "grouped, grouped",
			titles: [][]string{
				{"Episode 1 (1)", "Episode 2 (2)", "Episode 3 (1)", "Episode 4 (2)"},
				{"Episode 1 (1) - More", "Episode 2 (2) - Title", "Episode 3 (1) - After", "Episode 4 (2) - Dash"},
				{"Episode 1 Part 1", "Episode 2 Part 2", "Episode 3 Part 1", "Episode 4 Part 2"},
			},
			want: [][]int{{1, 2}, {3, 4}},
		},
		{
			name: "part two without part one",
			titles: [][]string{
				{"Episode 1", "Episode 2 (2)", "Episode 3 (1)", "Episode 4 (2)"},
				{"Episode 1 - More", "Episode 2 (2) - Title", "Episode 3 (1) - After", "Episode 4 (2) - Dash"},
				{"Episode 1", "Episode 2 Part 2", "Episode 3 Part 1", "Episode 4 Part 2"},
			},
			want: [][]int{{1}, {2}, {3, 4}},
		},
		{
			name: "skipped part",
			titles: [][]string{
				{"Episode 1 (1)", "Episode 3 (3)", "Episode 4", "Episode 5"},
				{"Episode 1 (1) - More", "Episode 3 (3) - Title", "Episode 4 - After", "Episode 5 - Dash"},
				{"Episode 1 Part 1", "Episode 3 Part 3", "Episode 4", "Episode 5"},
			},
			want: [][]int{{1}, {2}, {3}, {4}},
		},
		{
			name: "repeated part",
			titles: [][]string{
				{"Episode 1 (1)", "Episode 3 (1)", "Episode 4 (2)", "Episode 5"},
				{"Episode 1 (1) - More", "Episode 3 (1) - Title", "Episode 4 (2) - After", "Episode 5 - Dash"},
				{"Episode 1 Part 1", "Episode 3 Part 1", "Episode 4 Part 2", "Episode 5"},
			},
			want: [][]int{{1}, {2, 3}, {4}},
		},
	}

	for _, tt := range tests {
		for i, titles := range tt.titles {
			got := shape(GroupMultiPartEpisodes(namedEpisodes(titles...), false))
			if !sameShape(got, tt.want) {
				t.Errorf("%s case %d: got %v, want %v", tt.name, i, got, tt.want)
			}
		}
	}
}

func TestGroupMultiPartEpisodesPerShow(t *testing.T) {
	items := []models.MediaItem{
		{ID: 1, Kind: models.MediaKindEpisode, Title: "A (1)", ShowID: 1, SeasonNumber: 1, EpisodeNumber: 1},
		{ID: 2, Kind: models.MediaKindEpisode, Title: "B (2)", ShowID: 2, SeasonNumber: 1, EpisodeNumber: 2},
		{ID: 3, Kind: models.MediaKindMovie, Title: "Movie"},
		{ID: 4, Kind: models.MediaKindEpisode, Title: "C (2)", ShowID: 1, SeasonNumber: 1, EpisodeNumber: 2},
	}

	got := shape(GroupMultiPartEpisodes(items, false))
	if want := [][]int{{1, 4}, {2}, {3}}; !sameShape(got, want) {
		t.Errorf("per show: got %v, want %v", got, want)
	}

	got = shape(GroupMultiPartEpisodes(items, true))
	if want := [][]int{{1, 2}, {4}, {3}}; !sameShape(got, want) {
		t.Errorf("collection as show: got %v, want %v", got, want)
	}
}

func TestPartNumber(t *testing.T) {
	tests := []struct {
		title string
		want  int
		ok    bool
	}{
		{"Finale (3)", 3, true},
		{"Finale (3) - The End", 3, true},
		{"Finale Part 4", 4, true},
		{"Finale (Part 5)", 5, true},
		{"Finale (IV)", 4, true},
		{"Finale (IIX)", 8, true},
		{"Finale Part Two", 2, true},
		{"Finale Part Eleven", 0, false},
		{"Finale", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := PartNumber(tt.title)
			if got != tt.want || ok != tt.ok {
				t.Errorf("PartNumber(%q) = %d, %v; want %d, %v", tt.title, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCompareChronological(t *testing.T) {
	early := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)

	items := []models.MediaItem{
		{ID: 1, Kind: models.MediaKindMovie},
		{ID: 2, Kind: models.MediaKindEpisode, ReleaseDate: &late, SeasonNumber: 1, EpisodeNumber: 1},
		{ID: 3, Kind: models.MediaKindEpisode, ReleaseDate: &early, SeasonNumber: 2, EpisodeNumber: 1},
		{ID: 4, Kind: models.MediaKindEpisode, SeasonNumber: 1, EpisodeNumber: 2},
		{ID: 5, Kind: models.MediaKindEpisode, SeasonNumber: 1, EpisodeNumber: 1},
	}

	sorted := SortedChronologically(items)
	want := []int{3, 2, 5, 4, 1}
	for i, item := range sorted {
		if item.ID != want[i] {
			t.Fatalf("chronological order = %v, want %v", ids(sorted), want)
		}
	}

	bySeason := SortedBySeasonEpisode(items)
	want = []int{2, 5, 4, 3, 1}
	for i, item := range bySeason {
		if item.ID != want[i] {
			t.Fatalf("season/episode order = %v, want %v", ids(bySeason), want)
		}
	}
}

func TestGroupMultiCollection(t *testing.T) {
	groups := []collection.Group{
		{
			ScheduleAsGroup: true,
			PlaybackOrder:   models.PlaybackOrderSeasonEpisode,
			Items: []models.MediaItem{
				{ID: 2, Kind: models.MediaKindEpisode, SeasonNumber: 1, EpisodeNumber: 2},
				{ID: 1, Kind: models.MediaKindEpisode, SeasonNumber: 1, EpisodeNumber: 1},
			},
		},
		{Items: []models.MediaItem{{ID: 3, Kind: models.MediaKindMovie}, {ID: 4, Kind: models.MediaKindMovie}}},
		{ScheduleAsGroup: true},
	}

	got := shape(GroupMultiCollection(groups))
	if want := [][]int{{1, 2}, {3}, {4}}; !sameShape(got, want) {
		t.Errorf("GroupMultiCollection() = %v, want %v", got, want)
	}
}

func ids(items []models.MediaItem) []int {
	out := make([]int, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
