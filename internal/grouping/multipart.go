/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package grouping

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

var (
	partNumberParens = regexp.MustCompile(`^.*\((\d+)\)( - .*)?$`)
	partNumberWord   = regexp.MustCompile(`^.*\(?Part (\d+)\)?$`)
	partRoman        = regexp.MustCompile(`^.*\(([MDCLXVI]+)\)( - .*)?$`)
	partEnglish      = regexp.MustCompile(`^.*Part (\w+)$`)
)

var romanParts = map[string]int{
	"i": 1, "ii": 2, "iii": 3, "iv": 4, "v": 5,
	"vi": 6, "vii": 7, "viii": 8, "iix": 8, "ix": 9, "x": 10,
}

var englishParts = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// PartNumber extracts a trailing multi-part marker such as "(2)", "Part 2",
// "(II)" or "Part Two" from an episode title.
func PartNumber(title string) (int, bool) {
	if m := partNumberParens.FindStringSubmatch(title); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if m := partNumberWord.FindStringSubmatch(title); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if m := partRoman.FindStringSubmatch(title); m != nil {
		if n, ok := romanParts[strings.ToLower(m[1])]; ok {
			return n, true
		}
	}
	if m := partEnglish.FindStringSubmatch(title); m != nil {
		if n, ok := englishParts[strings.ToLower(m[1])]; ok {
			return n, true
		}
	}
	return 0, false
}

// GroupMultiPartEpisodes folds consecutive numbered parts (N, N+1, ...) of
// chronologically sorted episodes into single groups. Episodes are grouped
// per show unless treatCollectionsAsShows is set. Non-episodes follow,
// each in its own group.
func GroupMultiPartEpisodes(items []models.MediaItem, treatCollectionsAsShows bool) []GroupedMediaItem {
	var episodes []models.MediaItem
	for _, item := range items {
		if item.Kind == models.MediaKindEpisode {
			episodes = append(episodes, item)
		}
	}

	var shows [][]models.MediaItem
	if treatCollectionsAsShows {
		shows = append(shows, episodes)
	} else {
		var order []int
		byShow := make(map[int][]models.MediaItem)
		for _, e := range episodes {
			if _, ok := byShow[e.ShowID]; !ok {
				order = append(order, e.ShowID)
			}
			byShow[e.ShowID] = append(byShow[e.ShowID], e)
		}
		for _, id := range order {
			shows = append(shows, byShow[id])
		}
	}

	var groups []GroupedMediaItem
	for _, show := range shows {
		groups = append(groups, groupShow(SortedChronologically(show))...)
	}

	for _, item := range items {
		if item.Kind != models.MediaKindEpisode {
			groups = append(groups, GroupedMediaItem{First: item})
		}
	}
	return groups
}

func groupShow(sorted []models.MediaItem) []GroupedMediaItem {
	var (
		groups     []GroupedMediaItem
		group      *GroupedMediaItem
		lastNumber int
	)

	flush := func() {
		if group != nil && lastNumber != 0 {
			groups = append(groups, *group)
		}
		group = nil
		lastNumber = 0
	}
	addUngrouped := func(item models.MediaItem) {
		flush()
		groups = append(groups, GroupedMediaItem{First: item})
	}

	for _, episode := range sorted {
		number, ok := PartNumber(episode.Title)
		if !ok {
			addUngrouped(episode)
			continue
		}

		if number <= lastNumber && group != nil {
			flush()
		}

		switch {
		case number <= lastNumber:
			addUngrouped(episode)
		case lastNumber == 0:
			group = &GroupedMediaItem{First: episode}
			lastNumber = number
		case number == lastNumber+1:
			group.Additional = append(slices.Clip(group.Additional), episode)
			lastNumber = number
		default:
			addUngrouped(episode)
		}
	}
	flush()
	return groups
}
