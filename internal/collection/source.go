/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package collection

import (
	"context"
	"errors"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

// ErrUnknownKind is returned for a key whose kind no resolver handles.
var ErrUnknownKind = errors.New("unknown collection kind")

// Group is one sub-collection of a multi collection together with its items.
type Group struct {
	Key             Key
	ScheduleAsGroup bool
	PlaybackOrder   models.PlaybackOrder
	// UseCustomOrder means Items are already in their custom order.
	UseCustomOrder bool
	Items          []models.MediaItem
}

// Source resolves content keys. Implementations are idempotent per key
// within a build pass.
type Source interface {
	// MediaItems returns every media item behind key, versions and chapters loaded.
	MediaItems(ctx context.Context, key Key) ([]models.MediaItem, error)
	// Groups returns the sub-collections behind key. Keys that are not multi
	// collections are split by show or artist.
	Groups(ctx context.Context, key Key) ([]Group, error)
	// CustomOrder returns the custom index of each media item when the
	// collection uses a custom playback order; ok is false otherwise.
	CustomOrder(ctx context.Context, collectionID int) (order map[int]int, ok bool, err error)
	// Playlist returns the playlist with its entries sorted by index.
	Playlist(ctx context.Context, playlistID int) (*models.Playlist, error)
}

// GroupByParent splits items into one schedule-as-group collection per show or
// artist. Items without a parent are returned in a single ungrouped collection.
func GroupByParent(key Key, items []models.MediaItem) []Group {
	var (
		order   []models.ParentKey
		byGroup = make(map[models.ParentKey][]models.MediaItem)
		loose   []models.MediaItem
	)
	for _, item := range items {
		parent := item.Parent()
		if parent.Kind == "item" {
			loose = append(loose, item)
			continue
		}
		if _, ok := byGroup[parent]; !ok {
			order = append(order, parent)
		}
		byGroup[parent] = append(byGroup[parent], item)
	}

	groups := make([]Group, 0, len(order)+1)
	for _, parent := range order {
		groups = append(groups, Group{
			Key:             key,
			ScheduleAsGroup: true,
			PlaybackOrder:   models.PlaybackOrderChronological,
			Items:           byGroup[parent],
		})
	}
	if len(loose) > 0 {
		groups = append(groups, Group{Key: key, Items: loose})
	}
	return groups
}
