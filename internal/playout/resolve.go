/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"fmt"
	"sort"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// resolved is the content behind every key a playout can reach, filtered to
// playable items.
type resolved struct {
	keys      []collection.Key
	media     map[collection.Key][]models.MediaItem
	playlists map[int]*models.Playlist
	groups    map[collection.Key][]collection.Group
	custom    map[int]map[int]int
}

// schedules returns the default schedule followed by every template schedule,
// without duplicates.
func schedules(p *models.Playout) []*models.ProgramSchedule {
	var out []*models.ProgramSchedule
	seen := make(map[int]struct{})
	add := func(s *models.ProgramSchedule) {
		if s == nil {
			return
		}
		if _, ok := seen[s.ID]; ok {
			return
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	add(p.ProgramSchedule)
	for i := range p.Templates {
		add(p.Templates[i].ProgramSchedule)
	}
	return out
}

func sortedItems(s *models.ProgramSchedule) []*models.ProgramScheduleItem {
	items := make([]*models.ProgramScheduleItem, 0, len(s.Items))
	for i := range s.Items {
		items = append(items, &s.Items[i])
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Index < items[j].Index })
	return items
}

// scheduleKeys lists the primary and filler keys of a schedule in item order.
func scheduleKeys(s *models.ProgramSchedule) []collection.Key {
	var keys []collection.Key
	seen := make(map[collection.Key]struct{})
	for _, item := range sortedItems(s) {
		candidates := []collection.Key{collection.ForScheduleItem(item)}
		for _, f := range collection.Fillers(item) {
			candidates = append(candidates, collection.ForFiller(f))
		}
		for _, k := range candidates {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// resolve loads and filters the content of every key the playout references.
func (b *Builder) resolve(ctx context.Context, p *models.Playout) (*resolved, []Warning, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "resolveCollections")
	defer span.End()

	r := &resolved{
		media:     make(map[collection.Key][]models.MediaItem),
		playlists: make(map[int]*models.Playlist),
		groups:    make(map[collection.Key][]collection.Group),
		custom:    make(map[int]map[int]int),
	}
	seen := make(map[collection.Key]struct{})
	var queue []collection.Key
	for _, s := range schedules(p) {
		queue = append(queue, scheduleKeys(s)...)
	}

	var warnings []Warning
	warned := make(map[int]struct{})
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if key.Kind == models.CollectionKindPlaylist {
			playlist, err := b.source.Playlist(ctx, key.ID)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, nil, fmt.Errorf("resolve %s: %w", key, err)
			}
			r.playlists[key.ID] = playlist
			for i := range playlist.Items {
				queue = append(queue, collection.ForPlaylistItem(&playlist.Items[i]))
			}
		}

		items, err := b.source.MediaItems(ctx, key)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, nil, fmt.Errorf("resolve %s: %w", key, err)
		}

		valid := make([]models.MediaItem, 0, len(items))
		for _, item := range items {
			if !item.Kind.Valid() {
				return nil, nil, invariantf("media item %d has unknown kind %q", item.ID, item.Kind)
			}
			reason := ""
			switch {
			case b.opts.SkipMissingItems && item.Missing():
				reason = "skipping media item that does not exist on disk"
			case item.Duration() <= 0 && item.Kind != models.MediaKindRemoteStream:
				reason = "skipping media item with zero duration"
			}
			if reason == "" {
				valid = append(valid, item)
				continue
			}
			if _, ok := warned[item.ID]; ok {
				continue
			}
			warned[item.ID] = struct{}{}
			kind := WarningZeroDuration
			if item.Missing() && b.opts.SkipMissingItems {
				kind = WarningMissingMedia
			}
			w := Warning{Kind: kind, MediaItemID: item.ID, Message: reason}
			warnings = append(warnings, w)
			telemetry.PlayoutWarningsTotal.WithLabelValues(string(kind)).Inc()
			b.logger.Warn().Int("media_item_id", item.ID).Str("title", item.Title).Msg(reason)
		}
		if len(valid) == 0 {
			err := &EmptyCollectionError{Key: key}
			telemetry.RecordError(span, err)
			return nil, warnings, err
		}

		r.keys = append(r.keys, key)
		r.media[key] = valid
	}

	if err := b.resolveOrdering(ctx, p, r); err != nil {
		telemetry.RecordError(span, err)
		return nil, warnings, err
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"playout.id":        p.ID,
		"collections.count": len(r.keys),
	})
	return r, warnings, nil
}

// resolveOrdering validates playback orders and fetches the sub-collections
// and custom orders the enumerators need.
func (b *Builder) resolveOrdering(ctx context.Context, p *models.Playout, r *resolved) error {
	needGroups := make(map[collection.Key]struct{})
	check := func(key collection.Key, order models.PlaybackOrder) error {
		if !validOrder(order) {
			return invariantf("%s has unknown playback order %q", key, order)
		}
		if key.Kind == models.CollectionKindMultiCollection || order == models.PlaybackOrderShuffleInOrder {
			needGroups[key] = struct{}{}
		}
		return nil
	}

	for _, s := range schedules(p) {
		for _, item := range sortedItems(s) {
			if err := check(collection.ForScheduleItem(item), item.PlaybackOrder); err != nil {
				return err
			}
		}
	}
	for _, playlist := range r.playlists {
		for i := range playlist.Items {
			entry := &playlist.Items[i]
			if err := check(collection.ForPlaylistItem(entry), entry.PlaybackOrder); err != nil {
				return err
			}
		}
	}

	for _, key := range r.keys {
		if key.Kind == models.CollectionKindMultiCollection {
			needGroups[key] = struct{}{}
		}
		if _, ok := needGroups[key]; ok {
			groups, err := b.source.Groups(ctx, key)
			if err != nil {
				return fmt.Errorf("resolve groups of %s: %w", key, err)
			}
			r.groups[key] = filterGroups(groups, r.media[key])
		}
		if key.Kind == models.CollectionKindCollection {
			order, ok, err := b.source.CustomOrder(ctx, key.ID)
			if err != nil {
				return fmt.Errorf("resolve custom order of %s: %w", key, err)
			}
			if ok {
				r.custom[key.ID] = order
			}
		}
	}
	return nil
}

// validOrder accepts the empty order, which falls back to shuffle.
func validOrder(o models.PlaybackOrder) bool {
	switch o {
	case "", models.PlaybackOrderChronological, models.PlaybackOrderRandom,
		models.PlaybackOrderShuffle, models.PlaybackOrderShuffleInOrder,
		models.PlaybackOrderSeasonEpisode, models.PlaybackOrderRandomRotation,
		models.PlaybackOrderLatest:
		return true
	}
	return false
}

// filterGroups drops items that did not survive filtering, and empty groups.
func filterGroups(groups []collection.Group, valid []models.MediaItem) []collection.Group {
	ok := make(map[int]struct{}, len(valid))
	for _, item := range valid {
		ok[item.ID] = struct{}{}
	}
	out := make([]collection.Group, 0, len(groups))
	for _, g := range groups {
		items := make([]models.MediaItem, 0, len(g.Items))
		for _, item := range g.Items {
			if _, keep := ok[item.ID]; keep {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			continue
		}
		g.Items = items
		out = append(out, g)
	}
	return out
}
