/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// Repository resolves content keys against the database.
type Repository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewRepository creates a gorm-backed Source.
func NewRepository(db *gorm.DB, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With().Str("component", "collection_repository").Logger(),
	}
}

func (r *Repository) mediaQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Preload("Versions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Versions.Chapters", func(db *gorm.DB) *gorm.DB { return db.Order("start_time") }).
		Order("media_items.id")
}

// MediaItems implements Source.
func (r *Repository) MediaItems(ctx context.Context, key Key) ([]models.MediaItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "collection", "MediaItems")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"collection.kind": string(key.Kind),
		"collection.id":   key.ID,
	})

	items, err := r.mediaItems(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	r.logger.Debug().Str("collection", key.String()).Int("count", len(items)).Msg("resolved collection")
	return items, nil
}

func (r *Repository) mediaItems(ctx context.Context, key Key) ([]models.MediaItem, error) {
	var items []models.MediaItem
	switch key.Kind {
	case models.CollectionKindCollection:
		err := r.mediaQuery(ctx).
			Joins("JOIN collection_items ON collection_items.media_item_id = media_items.id").
			Where("collection_items.collection_id = ?", key.ID).
			Find(&items).Error
		if err != nil {
			return nil, fmt.Errorf("load collection %d: %w", key.ID, err)
		}
	case models.CollectionKindMultiCollection:
		var subs []models.MultiCollectionItem
		if err := r.db.WithContext(ctx).Where("multi_collection_id = ?", key.ID).Find(&subs).Error; err != nil {
			return nil, fmt.Errorf("load multi collection %d: %w", key.ID, err)
		}
		var nested [][]models.MediaItem
		for _, sub := range subs {
			subItems, err := r.mediaItems(ctx, Key{Kind: sub.CollectionKind, ID: sub.CollectionRefID})
			if err != nil {
				return nil, err
			}
			nested = append(nested, subItems)
		}
		items = distinct(nested...)
	case models.CollectionKindSmartCollection:
		var smart models.SmartCollection
		if err := r.db.WithContext(ctx).First(&smart, key.ID).Error; err != nil {
			return nil, fmt.Errorf("load smart collection %d: %w", key.ID, err)
		}
		err := r.mediaQuery(ctx).
			Where("LOWER(media_items.title) LIKE ?", likePattern(smart.Query)).
			Find(&items).Error
		if err != nil {
			return nil, fmt.Errorf("query smart collection %d: %w", key.ID, err)
		}
	case models.CollectionKindPlaylist:
		playlist, err := r.Playlist(ctx, key.ID)
		if err != nil {
			return nil, err
		}
		var nested [][]models.MediaItem
		for i := range playlist.Items {
			entryItems, err := r.mediaItems(ctx, ForPlaylistItem(&playlist.Items[i]))
			if err != nil {
				return nil, err
			}
			nested = append(nested, entryItems)
		}
		items = distinct(nested...)
	case models.CollectionKindShow:
		err := r.mediaQuery(ctx).
			Where("media_items.kind = ? AND media_items.show_id = ?", models.MediaKindEpisode, key.ID).
			Find(&items).Error
		if err != nil {
			return nil, fmt.Errorf("load show %d: %w", key.ID, err)
		}
	case models.CollectionKindArtist:
		err := r.mediaQuery(ctx).
			Where("media_items.kind IN ? AND media_items.artist_id = ?",
				[]models.MediaKind{models.MediaKindSong, models.MediaKindMusicVideo}, key.ID).
			Find(&items).Error
		if err != nil {
			return nil, fmt.Errorf("load artist %d: %w", key.ID, err)
		}
	case models.CollectionKindMediaItem:
		err := r.mediaQuery(ctx).Where("media_items.id = ?", key.ID).Find(&items).Error
		if err != nil {
			return nil, fmt.Errorf("load media item %d: %w", key.ID, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, key.Kind)
	}
	return items, nil
}

// Groups implements Source.
func (r *Repository) Groups(ctx context.Context, key Key) ([]Group, error) {
	if key.Kind != models.CollectionKindMultiCollection {
		items, err := r.MediaItems(ctx, key)
		if err != nil {
			return nil, err
		}
		return GroupByParent(key, items), nil
	}

	var subs []models.MultiCollectionItem
	if err := r.db.WithContext(ctx).Where("multi_collection_id = ?", key.ID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("load multi collection %d: %w", key.ID, err)
	}

	groups := make([]Group, 0, len(subs))
	for _, sub := range subs {
		subKey := Key{Kind: sub.CollectionKind, ID: sub.CollectionRefID}
		items, err := r.MediaItems(ctx, subKey)
		if err != nil {
			return nil, err
		}
		group := Group{
			Key:             subKey,
			ScheduleAsGroup: sub.ScheduleAsGroup,
			PlaybackOrder:   sub.PlaybackOrder,
			Items:           items,
		}
		if subKey.Kind == models.CollectionKindCollection {
			order, ok, err := r.CustomOrder(ctx, subKey.ID)
			if err != nil {
				return nil, err
			}
			if ok {
				SortByCustomOrder(group.Items, order)
				group.UseCustomOrder = true
			}
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// CustomOrder implements Source.
func (r *Repository) CustomOrder(ctx context.Context, collectionID int) (map[int]int, bool, error) {
	var c models.Collection
	err := r.db.WithContext(ctx).Preload("Items").First(&c, collectionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load collection %d: %w", collectionID, err)
	}
	if !c.UseCustomPlaybackOrder {
		return nil, false, nil
	}
	order := make(map[int]int, len(c.Items))
	for _, item := range c.Items {
		order[item.MediaItemID] = item.CustomIndex
	}
	return order, true, nil
}

// Playlist implements Source.
func (r *Repository) Playlist(ctx context.Context, playlistID int) (*models.Playlist, error) {
	var p models.Playlist
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_index") }).
		First(&p, playlistID).Error
	if err != nil {
		return nil, fmt.Errorf("load playlist %d: %w", playlistID, err)
	}
	return &p, nil
}

// SortByCustomOrder orders items by their custom index, falling back to id.
func SortByCustomOrder(items []models.MediaItem, order map[int]int) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := order[items[i].ID], order[items[j].ID]
		if a != b {
			return a < b
		}
		return items[i].ID < items[j].ID
	})
}

func likePattern(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if !strings.ContainsAny(q, "%_") {
		q = "%" + q + "%"
	}
	return q
}

func distinct(lists ...[]models.MediaItem) []models.MediaItem {
	seen := make(map[int]struct{})
	var out []models.MediaItem
	for _, list := range lists {
		for _, item := range list {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
