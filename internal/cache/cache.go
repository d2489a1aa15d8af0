/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for resolved collection contents.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// Default TTL values for different cache types
const (
	DefaultCollectionItemsTTL = 10 * time.Minute
	DefaultPlaylistTTL        = 10 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyCollectionItems = "grimnir:playout:cache:collection:" // + collection key
	KeyPlaylist        = "grimnir:playout:cache:playlist:"   // + playlist_id
	keyPattern         = "grimnir:playout:cache:*"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CollectionItemsTTL time.Duration
	PlaylistTTL        time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:          "localhost:6379",
		CollectionItemsTTL: DefaultCollectionItemsTTL,
		PlaylistTTL:        DefaultPlaylistTTL,
		DisableOnError:     true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache rather than an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return Disabled(cfg, logger), nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Disabled returns a cache that never stores anything.
func Disabled(cfg Config, logger zerolog.Logger) *Cache {
	return &Cache{
		logger:   logger.With().Str("component", "cache").Logger(),
		config:   cfg,
		disabled: true,
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")
	telemetry.CacheRequestsTotal.WithLabelValues(operation, "error").Inc()

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Collection caching methods

// GetCollectionItems retrieves the cached media items of a collection key.
func (c *Cache) GetCollectionItems(ctx context.Context, key string) ([]models.MediaItem, bool) {
	var items []models.MediaItem
	found, err := c.get(ctx, KeyCollectionItems+key, &items)
	if err != nil || !found {
		telemetry.CacheRequestsTotal.WithLabelValues("collection", "miss").Inc()
		return nil, false
	}
	telemetry.CacheRequestsTotal.WithLabelValues("collection", "hit").Inc()
	c.logger.Debug().Str("collection", key).Int("count", len(items)).Msg("collection items cache hit")
	return items, true
}

// SetCollectionItems caches the media items of a collection key.
func (c *Cache) SetCollectionItems(ctx context.Context, key string, items []models.MediaItem) error {
	c.logger.Debug().Str("collection", key).Int("count", len(items)).Msg("caching collection items")
	return c.set(ctx, KeyCollectionItems+key, items, c.config.CollectionItemsTTL)
}

// InvalidateCollection removes the cached items of a collection key.
func (c *Cache) InvalidateCollection(ctx context.Context, key string) error {
	c.logger.Debug().Str("collection", key).Msg("invalidating collection cache")
	return c.delete(ctx, KeyCollectionItems+key)
}

// Playlist caching methods

// GetPlaylist retrieves a cached playlist definition with its entries.
func (c *Cache) GetPlaylist(ctx context.Context, playlistID int) (*models.Playlist, bool) {
	var playlist models.Playlist
	found, err := c.get(ctx, fmt.Sprintf("%s%d", KeyPlaylist, playlistID), &playlist)
	if err != nil || !found {
		telemetry.CacheRequestsTotal.WithLabelValues("playlist", "miss").Inc()
		return nil, false
	}
	telemetry.CacheRequestsTotal.WithLabelValues("playlist", "hit").Inc()
	return &playlist, true
}

// SetPlaylist caches a playlist definition.
func (c *Cache) SetPlaylist(ctx context.Context, playlist *models.Playlist) error {
	return c.set(ctx, fmt.Sprintf("%s%d", KeyPlaylist, playlist.ID), playlist, c.config.PlaylistTTL)
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, keyPattern)
}
