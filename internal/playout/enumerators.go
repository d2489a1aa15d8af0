/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/enumerator"
	"github.com/friendsincode/grimnir_playout/internal/grouping"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/shuffle"
)

// playbackOrderFor is the order of the first schedule item whose primary key
// is key. Keys only reached as filler are shuffled.
func playbackOrderFor(items []*models.ProgramScheduleItem, key collection.Key) models.PlaybackOrder {
	for _, item := range items {
		if collection.ForScheduleItem(item) == key && item.PlaybackOrder != "" {
			return item.PlaybackOrder
		}
	}
	return models.PlaybackOrderShuffle
}

// newEnumerator builds the enumerator of one key. randomStartPoint only
// applies to enumerators starting a fresh lap.
func newEnumerator(sched *models.ProgramSchedule, key collection.Key, order models.PlaybackOrder, state enumerator.State, r *resolved, randomStartPoint bool) enumerator.Enumerator {
	items := r.media[key]

	switch key.Kind {
	case models.CollectionKindPlaylist:
		return newPlaylistEnumerator(sched, r.playlists[key.ID], state, r)
	case models.CollectionKindCollection:
		if custom, ok := r.custom[key.ID]; ok {
			return enumerator.NewCustomOrder(items, custom, state)
		}
	case models.CollectionKindMediaItem:
		return enumerator.NewSingleItem(items[0], state.Seed)
	}

	return orderedEnumerator(sched, key, order, items, state, r, randomStartPoint && state.Index == 0)
}

func orderedEnumerator(sched *models.ProgramSchedule, key collection.Key, order models.PlaybackOrder, items []models.MediaItem, state enumerator.State, r *resolved, randomStartPoint bool) enumerator.Enumerator {
	switch order {
	case models.PlaybackOrderChronological:
		if randomStartPoint && len(items) > 1 {
			state.Index = int32(shuffle.New(state.Seed).IntN(len(items) - 1))
		}
		groups := grouping.GroupMultiPartEpisodes(items, sched.TreatCollectionsAsShows)
		return enumerator.NewChronological(items, state).WithGroups(groups)
	case models.PlaybackOrderSeasonEpisode:
		groups := grouping.GroupMultiPartEpisodes(items, sched.TreatCollectionsAsShows)
		return enumerator.NewSeasonEpisode(items, state).WithGroups(groups)
	case models.PlaybackOrderRandom:
		return enumerator.NewRandomized(items, state)
	case models.PlaybackOrderRandomRotation:
		return enumerator.NewRandomizedRotating(items, state)
	case models.PlaybackOrderLatest:
		return enumerator.NewLatest(items, state)
	case models.PlaybackOrderShuffleInOrder:
		groups, ok := r.groups[key]
		if !ok {
			groups = collection.GroupByParent(key, items)
		}
		return enumerator.NewShuffleInOrder(groups, state, sched.RandomStartPoint)
	}

	var grouped []grouping.GroupedMediaItem
	switch {
	case key.Kind == models.CollectionKindMultiCollection:
		grouped = grouping.GroupMultiCollection(r.groups[key])
	case sched.KeepMultiPartEpisodesTogether:
		grouped = grouping.GroupMultiPartEpisodes(items, sched.TreatCollectionsAsShows)
	default:
		grouped = grouping.Ungrouped(items)
	}
	return enumerator.NewShuffled(grouped, state)
}

// newPlaylistEnumerator wires one child per playlist entry. Children are
// rebuilt from a seed whenever the playlist starts a new lap.
func newPlaylistEnumerator(sched *models.ProgramSchedule, playlist *models.Playlist, state enumerator.State, r *resolved) enumerator.Enumerator {
	entries := make([]enumerator.PlaylistEntry, 0, len(playlist.Items))
	for i := range playlist.Items {
		entry := playlist.Items[i]
		key := collection.ForPlaylistItem(&entry)
		items := r.media[key]
		order := entry.PlaybackOrder
		if order == "" {
			order = models.PlaybackOrderChronological
		}
		entries = append(entries, enumerator.PlaylistEntry{
			Key:                   key,
			PlayAll:               entry.PlayAll,
			IncludeInProgramGuide: entry.IncludeInProgramGuide,
			Items:                 items,
			New: func(seed int32) enumerator.Enumerator {
				childState := enumerator.State{Seed: seed}
				if key.Kind == models.CollectionKindCollection {
					if custom, ok := r.custom[key.ID]; ok {
						return enumerator.NewCustomOrder(items, custom, childState)
					}
				}
				if key.Kind == models.CollectionKindMediaItem {
					return enumerator.NewSingleItem(items[0], seed)
				}
				return orderedEnumerator(sched, key, order, items, childState, r, false)
			},
		})
	}
	return enumerator.NewPlaylist(entries, state, playlist.ShuffleItems)
}
