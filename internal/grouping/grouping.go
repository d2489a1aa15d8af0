/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package grouping folds media items that must play back to back into
// single shuffle units, and holds the orderings enumerators sort by.
package grouping

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

// GroupedMediaItem is the atomic unit shuffled enumerators permute.
type GroupedMediaItem struct {
	First      models.MediaItem
	Additional []models.MediaItem
}

// Len is the number of media items in the group.
func (g GroupedMediaItem) Len() int {
	return 1 + len(g.Additional)
}

// Ungrouped wraps every item in its own group.
func Ungrouped(items []models.MediaItem) []GroupedMediaItem {
	out := make([]GroupedMediaItem, len(items))
	for i, item := range items {
		out[i] = GroupedMediaItem{First: item}
	}
	return out
}

// Flatten expands groups back into media items, preserving order.
func Flatten(groups []GroupedMediaItem) []models.MediaItem {
	n := 0
	for _, g := range groups {
		n += g.Len()
	}
	out := make([]models.MediaItem, 0, n)
	for _, g := range groups {
		out = append(out, g.First)
		out = append(out, g.Additional...)
	}
	return out
}

var maxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

func releaseDate(m *models.MediaItem) time.Time {
	switch m.Kind {
	case models.MediaKindEpisode, models.MediaKindMovie, models.MediaKindMusicVideo:
		if m.ReleaseDate != nil {
			return *m.ReleaseDate
		}
	}
	return maxTime
}

func seasonNumber(m *models.MediaItem) int {
	if m.Kind == models.MediaKindEpisode {
		return m.SeasonNumber
	}
	return math.MaxInt
}

func episodeNumber(m *models.MediaItem) int {
	if m.Kind == models.MediaKindEpisode {
		return m.EpisodeNumber
	}
	return math.MaxInt
}

func songField(m *models.MediaItem, v string) string {
	if m.Kind == models.MediaKindSong {
		return v
	}
	return ""
}

// CompareChronological orders by release date (missing dates last), song
// date, season, episode, album, track and finally id.
func CompareChronological(a, b *models.MediaItem) int {
	if c := releaseDate(a).Compare(releaseDate(b)); c != 0 {
		return c
	}
	if c := cmp.Compare(songField(a, a.SongDate), songField(b, b.SongDate)); c != 0 {
		return c
	}
	if c := cmp.Compare(seasonNumber(a), seasonNumber(b)); c != 0 {
		return c
	}
	if c := cmp.Compare(episodeNumber(a), episodeNumber(b)); c != 0 {
		return c
	}
	if c := cmp.Compare(songField(a, a.Album), songField(b, b.Album)); c != 0 {
		return c
	}
	if c := cmp.Compare(songField(a, a.Track), songField(b, b.Track)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// CompareSeasonEpisode orders by season, episode and id.
func CompareSeasonEpisode(a, b *models.MediaItem) int {
	if c := cmp.Compare(seasonNumber(a), seasonNumber(b)); c != 0 {
		return c
	}
	if c := cmp.Compare(episodeNumber(a), episodeNumber(b)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortedChronologically returns a chronologically sorted copy of items.
func SortedChronologically(items []models.MediaItem) []models.MediaItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b models.MediaItem) int { return CompareChronological(&a, &b) })
	return out
}

// SortedBySeasonEpisode returns a season/episode sorted copy of items.
func SortedBySeasonEpisode(items []models.MediaItem) []models.MediaItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b models.MediaItem) int { return CompareSeasonEpisode(&a, &b) })
	return out
}

// GroupMultiCollection turns schedule-as-group sub-collections into single
// units ordered by their own rule; other sub-collections contribute their
// items individually.
func GroupMultiCollection(groups []collection.Group) []GroupedMediaItem {
	var out []GroupedMediaItem
	for _, g := range groups {
		if len(g.Items) == 0 {
			continue
		}
		if !g.ScheduleAsGroup {
			out = append(out, Ungrouped(g.Items)...)
			continue
		}
		ordered := OrderGroup(g)
		out = append(out, GroupedMediaItem{First: ordered[0], Additional: ordered[1:]})
	}
	return out
}

// OrderGroup returns the items of a sub-collection in its own order.
func OrderGroup(g collection.Group) []models.MediaItem {
	if g.UseCustomOrder {
		return slices.Clone(g.Items)
	}
	if g.PlaybackOrder == models.PlaybackOrderSeasonEpisode {
		return SortedBySeasonEpisode(g.Items)
	}
	return SortedChronologically(g.Items)
}
