/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package shuffle provides the seeded random source and Fisher-Yates shuffle
// every randomized enumerator is built on. The generator and the shuffle are
// part of the persisted enumerator state contract: a stored {seed, index}
// pair only reproduces the same order while both stay unchanged.
package shuffle

import (
	"math/rand/v2"
	"sync"
	"time"
)

// pcgIncrement is the fixed PCG stream selector.
const pcgIncrement = 0x9e3779b97f4a7c15

// Random is a deterministic generator seeded from a 32-bit enumerator seed.
type Random struct {
	src *rand.PCG
	rng *rand.Rand
}

// New returns a generator for seed.
func New(seed int32) *Random {
	src := rand.NewPCG(uint64(uint32(seed)), pcgIncrement)
	return &Random{src: src, rng: rand.New(src)}
}

// Next returns a non-negative 31-bit value. Enumerators use it both for
// draws and to mint the seed of their next lap.
func (r *Random) Next() int32 {
	return r.rng.Int32()
}

// IntN returns a value in [0, n). n must be positive.
func (r *Random) IntN(n int) int {
	return r.rng.IntN(n)
}

// Float64 returns a value in [0.0, 1.0).
func (r *Random) Float64() float64 {
	return r.rng.Float64()
}

// Clone returns an independent generator in the same position. Drawing from
// the clone never advances the original.
func (r *Random) Clone() *Random {
	b, err := r.src.MarshalBinary()
	if err != nil {
		panic("shuffle: marshal pcg state: " + err.Error())
	}
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(b); err != nil {
		panic("shuffle: unmarshal pcg state: " + err.Error())
	}
	return &Random{src: src, rng: rand.New(src)}
}

// Shuffle returns a shuffled copy of items. The input is not modified.
func Shuffle[T any](items []T, rng *Random) []T {
	out := make([]T, len(items))
	copy(out, items)
	n := len(out)
	for n > 1 {
		n--
		k := rng.IntN(n + 1)
		out[k], out[n] = out[n], out[k]
	}
	return out
}

// Permutation returns a permutation of [0, n) for seed.
func Permutation(seed int32, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return Shuffle(idx, New(seed))
}

// SeedGenerator mints fresh seeds for enumerators that have no prior state.
type SeedGenerator interface {
	NextSeed() int32
}

type lockedGenerator struct {
	mu  sync.Mutex
	rng *Random
}

// NewSeedGenerator returns a process-scoped generator seeded from the clock.
// It is safe for concurrent use by builds of different channels.
func NewSeedGenerator() SeedGenerator {
	return &lockedGenerator{rng: New(int32(time.Now().UnixNano()))}
}

// NewFixedSeedGenerator returns a generator with a fixed starting seed.
func NewFixedSeedGenerator(seed int32) SeedGenerator {
	return &lockedGenerator{rng: New(seed)}
}

func (g *lockedGenerator) NextSeed() int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Next()
}
