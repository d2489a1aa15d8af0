/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package locking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	first, ok, err := l.TryLock(ctx, ChannelKey(1))
	if err != nil || !ok {
		t.Fatalf("first TryLock = %v, %v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, ChannelKey(1)); ok {
		t.Fatal("second TryLock on a held key succeeded")
	}
	if _, ok, _ := l.TryLock(ctx, ChannelKey(2)); !ok {
		t.Fatal("other channel should not be blocked")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, ChannelKey(1)); !ok {
		t.Fatal("TryLock after release failed")
	}
}

func TestChannelKey(t *testing.T) {
	if got := ChannelKey(42); got != "channel:42" {
		t.Errorf("ChannelKey(42) = %q", got)
	}
}

func TestRedisLockerUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedisLocker(client, time.Minute, zerolog.Nop())
	lease, ok, err := l.TryLock(context.Background(), ChannelKey(1))
	if err == nil || ok || lease != nil {
		t.Fatalf("TryLock = %v, %v, %v; want an error", lease, ok, err)
	}
	if errors.Is(err, ErrNotHeld) {
		t.Fatalf("unexpected ErrNotHeld: %v", err)
	}
}
