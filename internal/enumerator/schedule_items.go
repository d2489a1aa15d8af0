/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package enumerator

import "github.com/friendsincode/grimnir_playout/internal/shuffle"

// Sequence iterates the rule list of a program schedule with the same
// resumable state as media enumerators.
type Sequence[T any] interface {
	Current() T
	MoveNext()
	State() State
	ResetState(State)
	Count() int
	// Peek returns the item offset positions ahead without advancing.
	Peek(offset int) T
}

// Ordered walks items in their given order.
type Ordered[T any] struct {
	items []T
	state State
}

// NewOrdered creates an Ordered sequence. items must not be empty.
func NewOrdered[T any](items []T, state State) *Ordered[T] {
	return &Ordered[T]{items: items, state: State{Seed: state.Seed, Index: normalizeIndex(state.Index, len(items))}}
}

func (o *Ordered[T]) Current() T { return o.items[o.state.Index] }

func (o *Ordered[T]) MoveNext() {
	o.state.Index = (o.state.Index + 1) % int32(len(o.items))
}

func (o *Ordered[T]) State() State { return o.state }

func (o *Ordered[T]) ResetState(state State) {
	o.state = State{Seed: state.Seed, Index: normalizeIndex(state.Index, len(o.items))}
}

func (o *Ordered[T]) Count() int { return len(o.items) }

func (o *Ordered[T]) Peek(offset int) T {
	return o.items[(int(o.state.Index)+offset)%len(o.items)]
}

// ShuffledSequence plays a reshuffled permutation of items per lap, never
// repeating the previous lap's last item first when two distinct ids exist.
type ShuffledSequence[T any] struct {
	items    []T
	id       func(T) int
	distinct int
	rng      *shuffle.Random
	shuffled []T
	state    State
}

// NewShuffledSequence creates a ShuffledSequence. items must not be empty.
func NewShuffledSequence[T any](items []T, id func(T) int, state State) *ShuffledSequence[T] {
	s := &ShuffledSequence[T]{items: items, id: id}
	ids := make(map[int]struct{}, len(items))
	for _, item := range items {
		ids[id(item)] = struct{}{}
	}
	s.distinct = len(ids)
	s.ResetState(state)
	return s
}

func (s *ShuffledSequence[T]) ResetState(state State) {
	if int(state.Index) >= len(s.items) || state.Index < 0 {
		state.Index = 0
		state.Seed = shuffle.New(state.Seed).Next()
	}
	s.rng = shuffle.New(state.Seed)
	s.shuffled = shuffle.Shuffle(s.items, s.rng)
	s.state = State{Seed: state.Seed}
	for s.state.Index < state.Index {
		s.MoveNext()
	}
}

func (s *ShuffledSequence[T]) Current() T { return s.shuffled[s.state.Index] }

func (s *ShuffledSequence[T]) MoveNext() {
	if int(s.state.Index)+1 < len(s.shuffled) {
		s.state.Index++
		return
	}

	tail := s.id(s.shuffled[s.state.Index])
	s.state.Index = 0
	for attempt := 0; ; attempt++ {
		s.state.Seed = s.rng.Next()
		s.rng = shuffle.New(s.state.Seed)
		s.shuffled = shuffle.Shuffle(s.items, s.rng)
		if s.distinct < 2 || s.id(s.shuffled[0]) != tail || attempt >= maxReshuffles {
			return
		}
	}
}

func (s *ShuffledSequence[T]) State() State { return s.state }
func (s *ShuffledSequence[T]) Count() int   { return len(s.items) }

func (s *ShuffledSequence[T]) Peek(offset int) T {
	if i := int(s.state.Index) + offset; i < len(s.shuffled) {
		return s.shuffled[i]
	}
	clone := *s
	clone.rng = s.rng.Clone()
	for range offset {
		clone.MoveNext()
	}
	return clone.Current()
}
