/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package locking provides per-channel exclusive build locks.
package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// ErrNotHeld is returned when releasing a lock that expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Locker grants exclusive access to a channel's playout.
type Locker interface {
	// TryLock acquires key without waiting. ok is false when another holder
	// has it.
	TryLock(ctx context.Context, key string) (lease *Lease, ok bool, err error)
}

// Lease is a held lock.
type Lease struct {
	Key   string
	Token string

	release func(ctx context.Context) error
	once    sync.Once
	err     error
}

// Release gives up the lease. Calling it more than once is harmless.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.release(ctx)
	})
	return l.err
}

// ChannelKey names the build lock of a channel.
func ChannelKey(channelID int) string {
	return fmt.Sprintf("channel:%d", channelID)
}

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker holds locks as expiring Redis keys so instances sharing a
// database never build the same channel at once.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	lease  time.Duration
	logger zerolog.Logger
}

// NewRedisLocker creates a RedisLocker. lease bounds how long a crashed holder
// blocks the channel.
func NewRedisLocker(client redis.Cmdable, lease time.Duration, logger zerolog.Logger) *RedisLocker {
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	return &RedisLocker{
		client: client,
		prefix: "grimnir:playout:lock:",
		lease:  lease,
		logger: logger.With().Str("component", "build_lock").Str("backend", "redis").Logger(),
	}
}

// TryLock implements Locker.
func (r *RedisLocker) TryLock(ctx context.Context, key string) (*Lease, bool, error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, redisKey, token, r.lease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		telemetry.BuildLockContention.WithLabelValues("redis").Inc()
		r.logger.Debug().Str("key", key).Msg("lock held elsewhere")
		return nil, false, nil
	}

	lease := &Lease{Key: key, Token: token}
	lease.release = func(ctx context.Context) error {
		n, err := unlockScript.Run(ctx, r.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if n == 0 {
			r.logger.Warn().Str("key", key).Msg("lock expired before release")
			return ErrNotHeld
		}
		return nil
	}
	return lease, true, nil
}

// LocalLocker serializes builds inside one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]string
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

// TryLock implements Locker.
func (l *LocalLocker) TryLock(_ context.Context, key string) (*Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		telemetry.BuildLockContention.WithLabelValues("local").Inc()
		return nil, false, nil
	}
	token := uuid.NewString()
	l.held[key] = token

	lease := &Lease{Key: key, Token: token}
	lease.release = func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key] != token {
			return ErrNotHeld
		}
		delete(l.held, key)
		return nil
	}
	return lease, true, nil
}
