/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package enumerator

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/shuffle"
)

// Randomized draws an independent random item on every advance. A position
// is reconstructed by replaying Index draws from Seed; the generator is
// reseeded every Count draws so Index stays below Count.
type Randomized struct {
	items   []models.MediaItem
	rng     *shuffle.Random
	state   State
	current int
}

// NewRandomized creates a Randomized enumerator.
func NewRandomized(items []models.MediaItem, state State) *Randomized {
	r := &Randomized{items: items}
	r.ResetState(state)
	return r
}

func (r *Randomized) draw() {
	if len(r.items) == 0 {
		return
	}
	r.current = int(r.rng.Next()) % len(r.items)
}

// ResetState implements Enumerator.
func (r *Randomized) ResetState(state State) {
	r.state = State{Seed: state.Seed}
	r.rng = shuffle.New(state.Seed)
	r.draw()
	target := normalizeIndex(state.Index, len(r.items))
	for r.state.Index < target {
		r.MoveNext()
	}
}

func (r *Randomized) Current() (*models.MediaItem, bool) {
	if len(r.items) == 0 {
		return nil, false
	}
	return &r.items[r.current], true
}

func (r *Randomized) MoveNext() {
	if len(r.items) == 0 {
		return
	}
	r.state.Index = (r.state.Index + 1) % int32(len(r.items))
	if r.state.Index == 0 {
		r.state.Seed = r.rng.Next()
		r.rng = shuffle.New(r.state.Seed)
	}
	r.draw()
}

func (r *Randomized) State() State { return r.state }
func (r *Randomized) Count() int   { return len(r.items) }

func (r *Randomized) MinimumDuration() (time.Duration, bool) { return minimumDuration(r.items) }

// Peek implements Peeker by advancing a copy with a cloned generator.
func (r *Randomized) Peek(offset int) (*models.MediaItem, bool) {
	if len(r.items) == 0 {
		return nil, false
	}
	clone := *r
	clone.rng = r.rng.Clone()
	for range offset {
		clone.MoveNext()
	}
	return clone.Current()
}

// RandomizedRotating draws a random parent group (show or artist), never the
// group drawn last while another exists, then a random member of it.
type RandomizedRotating struct {
	items     []models.MediaItem
	groups    [][]int
	rng       *shuffle.Random
	state     State
	current   int
	lastGroup int
}

// NewRandomizedRotating creates a RandomizedRotating enumerator.
func NewRandomizedRotating(items []models.MediaItem, state State) *RandomizedRotating {
	r := &RandomizedRotating{items: items}

	index := make(map[models.ParentKey]int)
	for i := range items {
		parent := items[i].Parent()
		g, ok := index[parent]
		if !ok {
			g = len(r.groups)
			index[parent] = g
			r.groups = append(r.groups, nil)
		}
		r.groups[g] = append(r.groups[g], i)
	}

	r.ResetState(state)
	return r
}

func (r *RandomizedRotating) draw() {
	if len(r.items) == 0 {
		return
	}
	var g int
	if len(r.groups) >= 2 && r.lastGroup >= 0 {
		g = int(r.rng.Next()) % (len(r.groups) - 1)
		if g >= r.lastGroup {
			g++
		}
	} else {
		g = int(r.rng.Next()) % len(r.groups)
	}
	members := r.groups[g]
	r.current = members[int(r.rng.Next())%len(members)]
	r.lastGroup = g
}

// ResetState implements Enumerator.
func (r *RandomizedRotating) ResetState(state State) {
	r.state = State{Seed: state.Seed}
	r.rng = shuffle.New(state.Seed)
	r.lastGroup = -1
	r.draw()
	target := normalizeIndex(state.Index, len(r.items))
	for r.state.Index < target {
		r.MoveNext()
	}
}

func (r *RandomizedRotating) Current() (*models.MediaItem, bool) {
	if len(r.items) == 0 {
		return nil, false
	}
	return &r.items[r.current], true
}

func (r *RandomizedRotating) MoveNext() {
	if len(r.items) == 0 {
		return
	}
	r.state.Index = (r.state.Index + 1) % int32(len(r.items))
	if r.state.Index == 0 {
		r.state.Seed = r.rng.Next()
		r.rng = shuffle.New(r.state.Seed)
		r.lastGroup = -1
	}
	r.draw()
}

func (r *RandomizedRotating) State() State { return r.state }
func (r *RandomizedRotating) Count() int   { return len(r.items) }

func (r *RandomizedRotating) MinimumDuration() (time.Duration, bool) {
	return minimumDuration(r.items)
}

// Peek implements Peeker.
func (r *RandomizedRotating) Peek(offset int) (*models.MediaItem, bool) {
	if len(r.items) == 0 {
		return nil, false
	}
	clone := *r
	clone.rng = r.rng.Clone()
	for range offset {
		clone.MoveNext()
	}
	return clone.Current()
}
