/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package collection

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/cache"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

// CachedSource serves media items and playlists from Redis when possible.
type CachedSource struct {
	next   Source
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewCachedSource wraps next with c.
func NewCachedSource(next Source, c *cache.Cache, logger zerolog.Logger) *CachedSource {
	return &CachedSource{
		next:   next,
		cache:  c,
		logger: logger.With().Str("component", "collection_cache").Logger(),
	}
}

// MediaItems implements Source.
func (s *CachedSource) MediaItems(ctx context.Context, key Key) ([]models.MediaItem, error) {
	if items, ok := s.cache.GetCollectionItems(ctx, key.String()); ok {
		return items, nil
	}
	items, err := s.next.MediaItems(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetCollectionItems(ctx, key.String(), items); err != nil {
		s.logger.Debug().Err(err).Str("collection", key.String()).Msg("failed to cache collection items")
	}
	return items, nil
}

// Groups implements Source.
func (s *CachedSource) Groups(ctx context.Context, key Key) ([]Group, error) {
	return s.next.Groups(ctx, key)
}

// CustomOrder implements Source.
func (s *CachedSource) CustomOrder(ctx context.Context, collectionID int) (map[int]int, bool, error) {
	return s.next.CustomOrder(ctx, collectionID)
}

// Playlist implements Source.
func (s *CachedSource) Playlist(ctx context.Context, playlistID int) (*models.Playlist, error) {
	if p, ok := s.cache.GetPlaylist(ctx, playlistID); ok {
		return p, nil
	}
	p, err := s.next.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetPlaylist(ctx, p); err != nil {
		s.logger.Debug().Err(err).Int("playlist", playlistID).Msg("failed to cache playlist")
	}
	return p, nil
}

// Invalidate drops the cached items of key.
func (s *CachedSource) Invalidate(ctx context.Context, key Key) error {
	return s.cache.InvalidateCollection(ctx, key.String())
}
